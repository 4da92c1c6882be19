package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"

	"github.com/BrandonDHaskell/punchbridge/internal/cloud"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/store"
	"github.com/BrandonDHaskell/punchbridge/internal/punchbridge/types"
)

var ErrEmptyDirectory = errors.New("directory fetch returned no usable entries")

// Field names tried, in order, for each directory attribute.
var (
	employeeIDFields  = []string{"employeeId", "EmployeeId", "employeeID", "EmployeeID", "employee_id"}
	displayNameFields = []string{"name", "displayName", "Name"}
	shiftFields       = []string{"shiftTiming", "ShiftTiming", "shift_timing"}
)

type RefreshResult struct {
	Fetched    int // remote documents listed
	Usable     int // documents with a canonical device id
	Skipped    int // documents without digits in their employee id
	Collisions int // usable documents whose device id was already taken
}

// DirectoryService rebuilds the local directory cache from the remote
// directory collection.
type DirectoryService struct {
	source     cloud.DirectorySource
	dir        store.Directory
	collection string
	logger     *log.Logger
	status     StatusReporter
}

func NewDirectoryService(src cloud.DirectorySource, dir store.Directory, collection string, logger *log.Logger, status StatusReporter) *DirectoryService {
	return &DirectoryService{
		source:     src,
		dir:        dir,
		collection: collection,
		logger:     logger,
		status:     reporterOrNop(status),
	}
}

// Refresh replaces the cache only when the fetch succeeds with at least one
// usable entry. On any error the previous snapshot stays in place.
func (s *DirectoryService) Refresh(ctx context.Context) (RefreshResult, error) {
	docs, err := s.source.ListAll(ctx, s.collection)
	if err != nil {
		s.status.SetServing(ComponentDirectory, false)
		s.logger.Printf("directory refresh failed, keeping cached snapshot: %v", err)
		return RefreshResult{}, fmt.Errorf("Refresh list: %w", err)
	}

	users, res := s.mappings(docs)
	if len(users) == 0 {
		s.status.SetServing(ComponentDirectory, false)
		s.logger.Printf("directory refresh: %d documents, none usable; keeping cached snapshot", res.Fetched)
		return res, ErrEmptyDirectory
	}

	if err := s.dir.ReplaceAll(ctx, users); err != nil {
		s.status.SetServing(ComponentDirectory, false)
		s.logger.Printf("directory refresh: store write failed, keeping cached snapshot: %v", err)
		return res, fmt.Errorf("Refresh replace: %w", err)
	}

	s.status.SetServing(ComponentDirectory, true)
	s.logger.Printf("directory refresh: cached %d users (fetched=%d skipped=%d collisions=%d)",
		res.Usable-res.Collisions, res.Fetched, res.Skipped, res.Collisions)
	return res, nil
}

func (s *DirectoryService) mappings(docs []cloud.Document) ([]types.UserMapping, RefreshResult) {
	res := RefreshResult{Fetched: len(docs)}
	users := make([]types.UserMapping, 0, len(docs))
	owner := make(map[string]string, len(docs))

	for _, d := range docs {
		raw := firstText(d.Fields, employeeIDFields)
		deviceID := types.CanonicalDeviceID(raw)
		if deviceID == "" {
			res.Skipped++
			continue
		}

		// Last write wins; collisions are reported, not resolved.
		if prev, ok := owner[deviceID]; ok && prev != d.ID {
			res.Collisions++
			s.logger.Printf("WARNING: directory device id %s claimed by %s and %s; using %s",
				deviceID, prev, d.ID, d.ID)
		}
		owner[deviceID] = d.ID

		users = append(users, types.UserMapping{
			DeviceID:    deviceID,
			CloudID:     d.ID,
			DisplayName: firstText(d.Fields, displayNameFields),
			ShiftTiming: firstText(d.Fields, shiftFields),
		})
		res.Usable++
	}
	return users, res
}

// firstText returns the first present, non-empty field rendered as text.
func firstText(fields map[string]any, names []string) string {
	for _, n := range names {
		v, ok := fields[n]
		if !ok || v == nil {
			continue
		}
		var s string
		switch x := v.(type) {
		case string:
			s = strings.TrimSpace(x)
		case int64:
			s = strconv.FormatInt(x, 10)
		case int:
			s = strconv.Itoa(x)
		case float64:
			if x == math.Trunc(x) {
				s = strconv.FormatFloat(x, 'f', -1, 64)
			}
		}
		if s != "" {
			return s
		}
	}
	return ""
}

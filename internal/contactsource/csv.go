package contactsource

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	appErrors "github.com/zainab674/voiceagents-sub004/internal/errors"
	"github.com/zainab674/voiceagents-sub004/internal/model"
	"github.com/zainab674/voiceagents-sub004/internal/repository"
)

var (
	nameColumns      = []string{"name", "full name", "contact name"}
	firstNameColumns = []string{"first name", "first_name", "firstname"}
	lastNameColumns  = []string{"last name", "last_name", "lastname"}
	phoneColumns     = []string{"phone", "phone number", "phone_number", "mobile", "msisdn", "number"}
	emailColumns     = []string{"email", "email address", "e-mail"}
	idColumns        = []string{"id", "contact id", "contact_id", "external_id"}
	dncColumns       = []string{"do_not_call", "do not call", "dnc"}
)

// CSVSource reads uploaded CSV files from Dir. The source id is the file name
// without extension. Contact keys are 1-based data row positions. Files are
// treated as immutable, so do-not-call marks go to Suppressions.
type CSVSource struct {
	Dir          string
	Suppressions repository.SuppressionRepositoryInterface

	mu    sync.Mutex
	cache map[string]cachedFile
}

type cachedFile struct {
	modTime  time.Time
	contacts []model.Contact
}

func (s *CSVSource) Count(ctx context.Context, sourceID string) (int, error) {
	contacts, err := s.load(sourceID)
	if err != nil {
		return 0, err
	}
	return len(contacts), nil
}

func (s *CSVSource) Next(ctx context.Context, sourceID string, afterKey int64) (*model.Contact, error) {
	contacts, err := s.load(sourceID)
	if err != nil {
		return nil, err
	}
	suppressed, err := s.Suppressions.Suppressed(ctx, model.SourceCSV, sourceID)
	if err != nil {
		return nil, err
	}
	for _, c := range contacts {
		if c.Key > afterKey && !c.DoNotCall && !suppressed[c.Key] {
			cp := c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *CSVSource) Remaining(ctx context.Context, sourceID string, afterKey int64) (int, error) {
	contacts, err := s.load(sourceID)
	if err != nil {
		return 0, err
	}
	suppressed, err := s.Suppressions.Suppressed(ctx, model.SourceCSV, sourceID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, c := range contacts {
		if c.Key > afterKey && !c.DoNotCall && !suppressed[c.Key] {
			n++
		}
	}
	return n, nil
}

func (s *CSVSource) MarkDoNotCall(ctx context.Context, sourceID string, key int64) error {
	return s.Suppressions.Suppress(ctx, model.SourceCSV, sourceID, key)
}

func (s *CSVSource) load(sourceID string) ([]model.Contact, error) {
	path := s.path(sourceID)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.NewConfigError("load contact csv",
				fmt.Errorf("%w: file %q", appErrors.ErrSourceNotFound, sourceID))
		}
		return nil, fmt.Errorf("failed to stat contact csv: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cached, ok := s.cache[path]; ok && cached.modTime.Equal(info.ModTime()) {
		return cached.contacts, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	contacts, err := ParseCSV(file)
	if err != nil {
		return nil, appErrors.NewConfigError("parse contact csv", err)
	}
	if s.cache == nil {
		s.cache = make(map[string]cachedFile)
	}
	s.cache[path] = cachedFile{modTime: info.ModTime(), contacts: contacts}
	return contacts, nil
}

func (s *CSVSource) path(sourceID string) string {
	name := filepath.Base(filepath.Clean("/" + sourceID))
	if !strings.HasSuffix(strings.ToLower(name), ".csv") {
		name += ".csv"
	}
	return filepath.Join(s.Dir, name)
}

// ParseCSV reads a header row followed by contact rows. Rows without a phone
// number keep their position so keys stay stable, but are flagged do-not-call.
func ParseCSV(r io.Reader) ([]model.Contact, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file: missing header")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	phoneIdx := findColumnIndex(header, phoneColumns)
	if phoneIdx == -1 {
		return nil, fmt.Errorf("phone column not found in CSV")
	}
	nameIdx := findColumnIndex(header, nameColumns)
	firstIdx := findColumnIndex(header, firstNameColumns)
	lastIdx := findColumnIndex(header, lastNameColumns)
	emailIdx := findColumnIndex(header, emailColumns)
	idIdx := findColumnIndex(header, idColumns)
	dncIdx := findColumnIndex(header, dncColumns)

	var contacts []model.Contact
	var key int64
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read row %d: %w", key+1, err)
		}
		key++

		c := model.Contact{
			Key:        key,
			ExternalID: cell(row, idIdx),
			Phone:      cell(row, phoneIdx),
			Email:      cell(row, emailIdx),
			DoNotCall:  parseFlag(cell(row, dncIdx)),
		}
		c.Name = cell(row, nameIdx)
		if c.Name == "" {
			c.Name = strings.TrimSpace(cell(row, firstIdx) + " " + cell(row, lastIdx))
		}
		if c.Phone == "" {
			c.DoNotCall = true
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

func findColumnIndex(header []string, possibleNames []string) int {
	for i, h := range header {
		h = strings.ToLower(strings.TrimSpace(h))
		for _, name := range possibleNames {
			if name == h {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func parseFlag(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "x":
		return true
	}
	return false
}

var _ Source = (*CSVSource)(nil)

// Package protect scans request values for SQL injection signatures.
//
// A Scanner owns its mode. In report mode every match is logged and returned
// as a Finding; in fail mode the first match aborts the scan with an
// InjectionDetected error; disabled scanners do no work.
//
// Only maps are descended into. Strings held inside slices are not scanned,
// so ["' or 1=1"] passes even in fail mode.
package protect

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/sirupsen/logrus"

	"lambdaguard/internal/apierrors"
)

// Mode controls what a Scanner does with a match.
type Mode string

const (
	ModeReport   Mode = "report"
	ModeFail     Mode = "fail"
	ModeDisabled Mode = "disabled"
)

// DefaultSections are the event keys scanned by ScanEvent. Headers are left
// out: cookie and user agent values routinely contain quotes and semicolons.
var DefaultSections = []string{"queryStringParameters", "pathParameters", "body"}

// Options configures a Scanner.
type Options struct {
	Mode       Mode       `mapstructure:"mode"`
	Disabled   []Category `mapstructure:"disabled"`
	Sections   []string   `mapstructure:"sections"`
	StatusCode int        `mapstructure:"status_code"`
}

// Finding describes one matched value.
type Finding struct {
	Category Category `json:"category"`
	Field    string   `json:"field"`
	Path     string   `json:"path"`
}

// Scanner is safe for concurrent use; it holds no per-scan state.
type Scanner struct {
	mode       Mode
	signatures []Signature
	sections   []string
	status     int
	logger     *logrus.Logger
}

// DecodeOptions decodes scanner options from a loosely typed map, such as a
// section of a configuration file.
func DecodeOptions(settings map[string]any) (Options, error) {
	var opts Options
	if err := mapstructure.Decode(settings, &opts); err != nil {
		return Options{}, fmt.Errorf("failed to decode protection options: %w", err)
	}
	return opts, nil
}

// NewScanner builds a Scanner. An empty mode defaults to report.
func NewScanner(opts Options, logger *logrus.Logger) (*Scanner, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	mode := opts.Mode
	if mode == "" {
		mode = ModeReport
	}
	if mode != ModeReport && mode != ModeFail && mode != ModeDisabled {
		return nil, apierrors.Configuration("invalid protection mode: %s", mode)
	}

	disabled := make(map[Category]bool, len(opts.Disabled))
	for _, c := range opts.Disabled {
		if !isKnownCategory(c) {
			return nil, apierrors.Configuration("unknown attack category: %s", c)
		}
		disabled[c] = true
	}

	signatures := make([]Signature, 0, len(catalog))
	for _, sig := range catalog {
		if !disabled[sig.Category] {
			signatures = append(signatures, sig)
		}
	}

	sections := opts.Sections
	if len(sections) == 0 {
		sections = DefaultSections
	}

	status := opts.StatusCode
	if status == 0 {
		status = http.StatusBadRequest
	}
	if status < 100 || status > 599 {
		return nil, apierrors.Configuration("invalid status code: %d", status)
	}

	return &Scanner{
		mode:       mode,
		signatures: signatures,
		sections:   sections,
		status:     status,
		logger:     logger,
	}, nil
}

// Mode returns the scanner's mode.
func (s *Scanner) Mode() Mode {
	return s.mode
}

// ScanEvent scans the configured sections of an invocation event.
func (s *Scanner) ScanEvent(event map[string]any) ([]Finding, error) {
	if s.mode == ModeDisabled {
		return nil, nil
	}

	var findings []Finding
	for _, section := range s.sections {
		value, ok := event[section]
		if !ok {
			continue
		}
		found, err := s.walk(value, section, section, findings)
		if err != nil {
			return found, err
		}
		findings = found
	}
	return findings, nil
}

// Scan walks value depth-first and tests every string leaf.
func (s *Scanner) Scan(value any) ([]Finding, error) {
	if s.mode == ModeDisabled {
		return nil, nil
	}
	return s.walk(value, "", "", nil)
}

func (s *Scanner) walk(value any, key, path string, findings []Finding) ([]Finding, error) {
	switch v := value.(type) {
	case string:
		return s.check(v, key, path, findings)
	case map[string]any:
		for _, k := range sortedKeys(v) {
			var err error
			findings, err = s.walk(v[k], k, join(path, k), findings)
			if err != nil {
				return findings, err
			}
		}
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			var err error
			findings, err = s.check(v[k], k, join(path, k), findings)
			if err != nil {
				return findings, err
			}
		}
	}
	return findings, nil
}

func (s *Scanner) check(value, key, path string, findings []Finding) ([]Finding, error) {
	for _, sig := range s.signatures {
		if !sig.Pattern.MatchString(value) {
			continue
		}

		finding := Finding{Category: sig.Category, Field: key, Path: path}
		findings = append(findings, finding)

		s.logger.WithFields(logrus.Fields{
			"attack": sig.Category,
			"field":  key,
			"path":   path,
			"mode":   s.mode,
		}).Warn("potential injection attack detected")

		if s.mode == ModeFail {
			return findings, apierrors.Injection(key, string(sig.Category), s.status)
		}
		return findings, nil
	}
	return findings, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

package offline

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/mfridman/interpolate"
	"github.com/pressly/goose/v3"

	apperrors "github.com/lueurxax/ielts-api/internal/core/errors"
)

const (
	annotationPrefix         = "-- +goose"
	annotationUp             = "Up"
	annotationDown           = "Down"
	annotationStatementBegin = "StatementBegin"
	annotationStatementEnd   = "StatementEnd"
	annotationNoTransaction  = "NO TRANSACTION"
	annotationEnvsubOn       = "ENVSUB ON"
	annotationEnvsubOff      = "ENVSUB OFF"
)

var annotations = []string{
	annotationUp,
	annotationDown,
	annotationStatementBegin,
	annotationStatementEnd,
	annotationNoTransaction,
	annotationEnvsubOn,
	annotationEnvsubOff,
}

// processEnv resolves ${VAR} references against the process environment.
type processEnv struct{}

func (processEnv) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}

// canonicalAnnotation matches directive case-insensitively, as goose does.
func canonicalAnnotation(directive string) (string, bool) {
	directive = strings.TrimSpace(directive)
	for _, a := range annotations {
		if strings.EqualFold(a, directive) {
			return a, true
		}
	}

	return "", false
}

// Migration is one annotated SQL file split into its sections.
type Migration struct {
	Version       int64
	Name          string
	Up            string
	Down          string
	NoTransaction bool
}

// Load reads every *.sql file at the root of fsys, ordered by version.
func Load(fsys fs.FS) ([]Migration, error) {
	names, err := fs.Glob(fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	result := make([]Migration, 0, len(names))
	seen := make(map[int64]string, len(names))

	for _, name := range names {
		version, err := goose.NumericComponent(name)
		if err != nil {
			return nil, fmt.Errorf("%s: %w: %w", name, apperrors.ErrMalformedMigration, err)
		}

		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("%s and %s share version %d: %w", prev, name, version, apperrors.ErrMalformedMigration)
		}

		seen[version] = name

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}

		m, err := Parse(string(content))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}

		m.Version = version
		m.Name = strings.TrimSuffix(path.Base(name), ".sql")
		result = append(result, m)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Version < result[j].Version })

	return result, nil
}

// Parse splits an annotated migration into its up and down SQL. Statement
// markers are dropped; the statements between them are kept verbatim, except
// that lines inside an ENVSUB ON block have ${VAR} references expanded from
// the environment.
func Parse(content string) (Migration, error) {
	var (
		m       Migration
		current *strings.Builder
		up      strings.Builder
		down    strings.Builder
		hasUp   bool
		envsub  bool
	)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)

		if directive, ok := strings.CutPrefix(trimmed, annotationPrefix); ok {
			annotation, known := canonicalAnnotation(directive)
			if !known {
				return Migration{}, fmt.Errorf("unknown annotation %q: %w", trimmed, apperrors.ErrMalformedMigration)
			}

			switch annotation {
			case annotationUp:
				current = &up
				hasUp = true
			case annotationDown:
				current = &down
			case annotationNoTransaction:
				m.NoTransaction = true
			case annotationEnvsubOn:
				envsub = true
			case annotationEnvsubOff:
				envsub = false
			}

			continue
		}

		if current == nil {
			continue
		}

		if envsub {
			expanded, err := interpolate.Interpolate(processEnv{}, line)
			if err != nil {
				return Migration{}, fmt.Errorf("expand %q: %w: %w", trimmed, apperrors.ErrMalformedMigration, err)
			}

			line = expanded
		}

		current.WriteString(line)
		current.WriteByte('\n')
	}

	if err := scanner.Err(); err != nil {
		return Migration{}, fmt.Errorf("scan migration: %w", err)
	}

	if !hasUp {
		return Migration{}, fmt.Errorf("missing %s %s: %w", annotationPrefix, annotationUp, apperrors.ErrMalformedMigration)
	}

	m.Up = strings.TrimSpace(up.String())
	m.Down = strings.TrimSpace(down.String())

	return m, nil
}

package relay

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/tilerelay/internal/imaging"
	"github.com/GriffinCanCode/tilerelay/internal/shared/id"
)

// ArtifactPrefix starts every artifact file name
const ArtifactPrefix = "scaled_image"

// ErrNotArtifact reports a file name a Store could not have produced
var ErrNotArtifact = errors.New("not an artifact name")

// Artifact is one persisted scaled image
type Artifact struct {
	ID        id.ArtifactID
	Name      string
	Path      string
	URL       string
	Format    string
	Size      int
	CreatedAt time.Time
}

// Store writes artifacts below a served directory
type Store struct {
	dir     string
	baseURL string
	ids     *id.Generator
	now     func() time.Time
}

// NewStore creates dir if needed and returns a store publishing under baseURL
func NewStore(dir, baseURL string) (*Store, error) {
	if dir == "" {
		return nil, errors.New("artifact directory is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid artifact base URL: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Store{
		dir:     dir,
		baseURL: baseURL,
		ids:     id.NewGenerator(),
		now:     time.Now,
	}, nil
}

// Dir is the directory artifacts are written to
func (s *Store) Dir() string {
	return s.dir
}

// Save persists data under a fresh name and returns its public location
func (s *Store) Save(data []byte) (Artifact, error) {
	format, err := imaging.Detect(data)
	if err != nil {
		return Artifact{}, err
	}

	now := s.now()
	artID := s.ids.ArtifactIDAt(now)
	name := fmt.Sprintf("%s_%d_%s.%s", ArtifactPrefix, now.Unix(), artID.ULID(), imaging.Extension(format))
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to create artifact: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, fmt.Errorf("failed to write artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, fmt.Errorf("failed to close artifact: %w", err)
	}

	link, err := url.JoinPath(s.baseURL, name)
	if err != nil {
		return Artifact{}, fmt.Errorf("failed to build artifact URL: %w", err)
	}

	return Artifact{
		ID:        artID,
		Name:      name,
		Path:      path,
		URL:       link,
		Format:    format,
		Size:      len(data),
		CreatedAt: now,
	}, nil
}

// ParseArtifactName recovers the ID and creation time encoded in a name
// produced by Save
func ParseArtifactName(name string) (id.ArtifactID, time.Time, error) {
	ext := filepath.Ext(name)
	rest, ok := strings.CutPrefix(strings.TrimSuffix(name, ext), ArtifactPrefix+"_")
	if !ok || len(ext) < 2 {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotArtifact, name)
	}

	secs, ulidPart, ok := strings.Cut(rest, "_")
	if !ok || !id.IsValid(ulidPart) {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotArtifact, name)
	}
	created, err := id.Timestamp(ulidPart)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %q", ErrNotArtifact, name)
	}
	if secs != strconv.FormatInt(created.Unix(), 10) {
		return "", time.Time{}, fmt.Errorf("%w: %q: timestamp mismatch", ErrNotArtifact, name)
	}
	return id.ArtifactID(id.ArtifactPrefix + "_" + ulidPart), created, nil
}

// IsArtifactName reports whether name has the shape Save produces
func IsArtifactName(name string) bool {
	_, _, err := ParseArtifactName(name)
	return err == nil
}

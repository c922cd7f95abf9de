// Package scenefile reads YAML scene descriptions and imports them into a
// Repository and BlobStore.
//
//	scene_id: 6f1c1b8e-3f0e-4c43-a1f7-9d3c3c4f1f10
//	layers:
//	  - name: cover
//	    width: 720
//	    height: 1280
//	    duration: 5s
//	    editable_index: 0
//	    default_image: images/cover.webp
//	    content_duration: 3s
//	    video_ranges:
//	      - {start: 0s, duration: 3s}
package scenefile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/imagelayer/pkg/imagelayer"
	"gopkg.in/yaml.v3"
)

// File is a parsed scene description
type File struct {
	SceneID uuid.UUID `yaml:"scene_id"`
	Layers  []Layer   `yaml:"layers"`

	// dir resolves relative default_image paths
	dir string
}

// Layer describes one image layer of the scene
type Layer struct {
	ID              uuid.UUID    `yaml:"id"`
	Name            string       `yaml:"name"`
	Width           int          `yaml:"width"`
	Height          int          `yaml:"height"`
	Duration        Duration     `yaml:"duration"`
	EditableIndex   *int         `yaml:"editable_index"`
	DefaultImage    string       `yaml:"default_image"`
	ContentDuration Duration     `yaml:"content_duration"`
	VideoRanges     []VideoRange `yaml:"video_ranges"`
}

// VideoRange is a replacement window in content time
type VideoRange struct {
	Start    Duration `yaml:"start"`
	Duration Duration `yaml:"duration"`
}

// Duration accepts Go duration strings ("1.5s", "250ms") or a plain integer
// number of microseconds.
type Duration imagelayer.Time

// UnmarshalYAML implements yaml.Unmarshaler
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var us int64
	if err := node.Decode(&us); err == nil {
		*d = Duration(us)
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("line %d: duration must be a string or integer", node.Line)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", node.Line, err)
	}
	*d = Duration(imagelayer.FromDuration(parsed))
	return nil
}

// Time returns the duration in microseconds
func (d Duration) Time() imagelayer.Time { return imagelayer.Time(d) }

// Parse decodes a scene description
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse scene file: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and decodes the scene description at path. Relative
// default_image paths resolve against the file's directory.
func Load(filename string) (*File, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene file: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	f.dir = filepath.Dir(filename)
	return f, nil
}

// Validate checks every layer description
func (f *File) Validate() error {
	if len(f.Layers) == 0 {
		return errors.New("scene file has no layers")
	}
	for i, l := range f.Layers {
		if l.Duration < 0 || l.ContentDuration < 0 {
			return fmt.Errorf("layer %d (%s): %w", i, l.Name, imagelayer.ErrNegativeDuration)
		}
		for _, r := range l.VideoRanges {
			if r.Start < 0 || r.Duration < 0 || r.Duration > math.MaxInt64-r.Start {
				return fmt.Errorf("layer %d (%s): %w", i, l.Name, &imagelayer.RangeError{
					Range: imagelayer.VideoRange{Start: r.Start.Time(), Duration: r.Duration.Time()},
					Err:   imagelayer.ErrInvalidVideoRange,
				})
			}
		}
		if _, err := imagelayer.NewContent(l.contentDuration(), l.ranges()); err != nil {
			return fmt.Errorf("layer %d (%s): %w", i, l.Name, err)
		}
	}
	return nil
}

// contentDuration is the declared content_duration, or the end of the
// furthest range when the file leaves it out.
func (l *Layer) contentDuration() imagelayer.Time {
	if l.ContentDuration > 0 {
		return l.ContentDuration.Time()
	}
	var end imagelayer.Time
	for _, r := range l.VideoRanges {
		if e := r.Start.Time() + r.Duration.Time(); e > end {
			end = e
		}
	}
	return end
}

func (l *Layer) ranges() []imagelayer.VideoRange {
	var out []imagelayer.VideoRange
	for _, r := range l.VideoRanges {
		out = append(out, imagelayer.VideoRange{Start: r.Start.Time(), Duration: r.Duration.Time()})
	}
	return out
}

// Records converts the description into repository records. Missing
// scene and layer ids are generated and written back to f.
func (f *File) Records() []*imagelayer.LayerRecord {
	if f.SceneID == uuid.Nil {
		f.SceneID = uuid.New()
	}
	base := time.Now().UTC()

	records := make([]*imagelayer.LayerRecord, 0, len(f.Layers))
	for i := range f.Layers {
		l := &f.Layers[i]
		if l.ID == uuid.Nil {
			l.ID = uuid.New()
		}
		index := imagelayer.NoEditableIndex
		if l.EditableIndex != nil {
			index = *l.EditableIndex
		}
		rec := &imagelayer.LayerRecord{
			ID:                     l.ID,
			SceneID:                f.SceneID,
			Name:                   l.Name,
			Width:                  l.Width,
			Height:                 l.Height,
			Duration:               l.Duration.Time(),
			EditableIndex:          index,
			DefaultContentDuration: l.contentDuration(),
			DefaultVideoRanges:     l.ranges(),
			// file order is creation order
			CreatedAt: base.Add(time.Duration(i) * time.Microsecond),
		}
		if l.DefaultImage != "" {
			rec.DefaultImageKey = path.Join(f.SceneID.String(), l.ID.String()+path.Ext(filepath.ToSlash(l.DefaultImage)))
		}
		records = append(records, rec)
	}
	return records
}

// Import uploads every default image to blobs and creates the layer records
// in repo. It returns the scene id.
func (f *File) Import(ctx context.Context, repo imagelayer.Repository, blobs imagelayer.BlobStore) (uuid.UUID, error) {
	records := f.Records()
	for i, rec := range records {
		if rec.DefaultImageKey != "" {
			if blobs == nil {
				return uuid.Nil, errors.New("blob store is required to import default images")
			}
			data, err := os.ReadFile(f.resolve(f.Layers[i].DefaultImage))
			if err != nil {
				return uuid.Nil, fmt.Errorf("failed to read default image of layer %s: %w", rec.Name, err)
			}
			if err := blobs.Upload(ctx, rec.DefaultImageKey, bytes.NewReader(data)); err != nil {
				return uuid.Nil, fmt.Errorf("failed to upload default image of layer %s: %w", rec.Name, err)
			}
		}
		if err := repo.CreateLayer(ctx, rec); err != nil {
			return uuid.Nil, fmt.Errorf("failed to create layer %s: %w", rec.Name, err)
		}
	}
	return f.SceneID, nil
}

func (f *File) resolve(p string) string {
	if filepath.IsAbs(p) || f.dir == "" {
		return p
	}
	return filepath.Join(f.dir, p)
}

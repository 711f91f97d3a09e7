package fontcheck

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"golang.org/x/image/font/gofont/goregular"
)

// EmbeddedSource is Font.Source for the built-in Go Regular face.
const EmbeddedSource = "embedded:goregular"

// Font is a loaded TrueType font.
type Font struct {
	Family string
	Data   []byte
	Source string
}

// Resource loads the text font once per process. The first Load decides the
// outcome for the lifetime of the Resource.
type Resource struct {
	// Path is the configured font file. When it is empty or missing, a system
	// font is tried and then the embedded Go Regular face.
	Path string
	// SystemLookup finds an installed TrueType font. Nil disables the lookup.
	SystemLookup func() string

	once sync.Once
	font *Font
	err  error
}

// NewResource returns a Resource for path that also searches installed fonts.
func NewResource(path string) *Resource {
	return &Resource{Path: path, SystemLookup: systemFont}
}

// Load returns the font, loading it on first use.
func (r *Resource) Load() (*Font, error) {
	r.once.Do(func() {
		r.font, r.err = r.load()
		if r.err != nil {
			log.Printf("[Font] load failed: %v", r.err)
			return
		}
		log.Printf("[Font] loaded %s (%d bytes)", r.font.Source, len(r.font.Data))
	})
	return r.font, r.err
}

func (r *Resource) load() (*Font, error) {
	if r.Path != "" {
		data, err := os.ReadFile(r.Path)
		switch {
		case err == nil:
			if err := Validate(data); err != nil {
				return nil, fmt.Errorf("font %s: %w", r.Path, err)
			}
			return &Font{Family: "DocSans", Data: data, Source: r.Path}, nil
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("read font %s: %w", r.Path, err)
		}
		log.Printf("[Font] %s not found, falling back", r.Path)
	}

	if r.SystemLookup != nil {
		if p := r.SystemLookup(); p != "" {
			if data, err := os.ReadFile(p); err == nil && Validate(data) == nil {
				return &Font{Family: "DocSans", Data: data, Source: p}, nil
			}
		}
	}

	return &Font{Family: "GoRegular", Data: goregular.TTF, Source: EmbeddedSource}, nil
}

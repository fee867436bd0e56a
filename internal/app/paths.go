package app

import (
	"os"
	"path/filepath"

	"github.com/foolishimp/c4h-intent-system-sub000/internal/app/config"
)

// Paths holds every resolved on-disk location used for one project
type Paths struct {
	Project string // project root, absolute
	Home    string // <project>/.c4h unless C4H_HOME is set
	Var     string // <home>/var

	Config  string // <home>/config.yaml
	DB      string // state.db_path
	Runs    string // state.dir
	Locks   string // <home>/var/locks
	Archive string // archive.local_dir
	Journal string // <home>/var/journal.ndjson
	Health  string // <home>/var/health.json
}

// ResolvePaths resolves paths for project. Relative config paths are taken
// relative to the project root. cfg may be nil.
func ResolvePaths(project string, cfg *config.Config) Paths {
	abs, err := filepath.Abs(project)
	if err != nil {
		abs = filepath.Clean(project)
	}

	home := os.Getenv("C4H_HOME")
	if home == "" {
		home = filepath.Join(abs, ".c4h")
	}

	p := Paths{
		Project: abs,
		Home:    home,
		Var:     filepath.Join(home, "var"),
		Config:  filepath.Join(home, "config.yaml"),
	}
	p.Locks = filepath.Join(p.Var, "locks")
	p.Journal = filepath.Join(p.Var, "journal.ndjson")
	p.Health = filepath.Join(p.Var, "health.json")

	p.DB = filepath.Join(home, "c4h.db")
	p.Runs = filepath.Join(home, "runs")
	p.Archive = filepath.Join(home, "archive")
	if cfg != nil {
		p.DB = p.under(cfg.State.DBPath, p.DB)
		p.Runs = p.under(cfg.State.Dir, p.Runs)
		p.Archive = p.under(cfg.Archive.LocalDir, p.Archive)
	}
	return p
}

func (p Paths) under(v, fallback string) string {
	switch {
	case v == "":
		return fallback
	case filepath.IsAbs(v):
		return v
	default:
		return filepath.Join(p.Project, v)
	}
}

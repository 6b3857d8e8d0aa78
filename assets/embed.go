// Package assets embeds the item catalog icons.
package assets

import (
	"embed"
	"io/fs"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed icons
var content embed.FS

// Installer stores a named file. uploads.Storage implements it.
type Installer interface {
	Install(name string, data []byte) error
}

// Icons returns the icon file system.
func Icons() fs.FS {
	sub, err := fs.Sub(content, "icons")
	if err != nil {
		zap.L().Fatal("failed to create icons sub-filesystem", zap.Error(err))
	}
	return sub
}

// InstallIcons copies every icon into dst. Files already present are kept.
func InstallIcons(dst Installer) error {
	icons := Icons()
	entries, err := fs.ReadDir(icons, ".")
	if err != nil {
		return eris.Wrap(err, "assets: list icons")
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := fs.ReadFile(icons, e.Name())
		if err != nil {
			return eris.Wrapf(err, "assets: read %s", e.Name())
		}
		if err := dst.Install(e.Name(), data); err != nil {
			return eris.Wrapf(err, "assets: install %s", e.Name())
		}
	}
	return nil
}

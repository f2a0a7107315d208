// SPDX-License-Identifier: LGPL-3.0-or-later

package hyperfetch

import (
	"os"
	"path/filepath"
)

func ensureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

func dirOf(path string) string {
	return filepath.Dir(path)
}

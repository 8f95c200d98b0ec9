package identity

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// Validate reports whether dir holds nvidia.crt and nvidia.key. A missing
// canonical file is copied from the only *.crt (or *.key) file in dir; zero
// or several candidates leave dir untouched and return false.
func Validate(dir string) bool {
	type pending struct{ src, dst string }
	var copies []pending

	for _, name := range []string{CertificateFile, KeyFile} {
		dst := filepath.Join(dir, name)
		if exists(dst) {
			continue
		}
		matches, err := filepath.Glob(filepath.Join(dir, "*"+filepath.Ext(name)))
		if err != nil || len(matches) != 1 {
			log.Debugf("validate %s: %d candidates for %s", dir, len(matches), name)
			return false
		}
		copies = append(copies, pending{src: matches[0], dst: dst})
	}

	var copied []string
	for _, c := range copies {
		if err := copyFile(c.src, c.dst); err != nil {
			log.Warnf("validate %s: %v", dir, err)
			for _, path := range copied {
				if err := os.Remove(path); err != nil {
					log.Warnf("validate %s: %v", dir, err)
				}
			}
			return false
		}
		copied = append(copied, c.dst)
		log.Infof("copied %s to %s", filepath.Base(c.src), filepath.Base(c.dst))
	}
	return true
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	perm := os.FileMode(0o644)
	if filepath.Ext(dst) == filepath.Ext(KeyFile) {
		perm = 0o600
	}
	return writeFileAtomic(dst, data, perm)
}

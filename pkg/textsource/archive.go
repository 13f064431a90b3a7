package textsource

import (
	"archive/tar"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
)

// readArchive returns the text of every regular file in a tar stream, one
// member per line. Members share the loader's size limit.
func (l *Loader) readArchive(r io.Reader, name string) (string, error) {
	tr := tar.NewReader(r)
	limit := l.maxSize()

	var parts []string
	var total int64
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("error reading tar archive %s: %w", name, err)
		}
		if header.Typeflag != tar.TypeReg {
			continue
		}
		if total+header.Size > limit {
			return "", ErrTooLarge
		}

		body, err := l.readLimited(tr)
		if err != nil {
			return "", fmt.Errorf("read %s in %s: %w", header.Name, name, err)
		}
		total += int64(len(body))

		member := strings.ToLower(header.Name)
		text, err := decode(body, member, &url.URL{Scheme: "file", Path: path.Clean("/" + header.Name)})
		if err != nil {
			return "", fmt.Errorf("%s in %s: %w", header.Name, name, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n"), nil
}

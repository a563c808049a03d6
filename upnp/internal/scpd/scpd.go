// Package scpd registers the service descriptions of the MediaRenderer
// services with statik. Import it for side effects and open the files
// with fs.New, e.g. "/AVTransport.xml".
package scpd

import (
	"archive/zip"
	"bytes"
	"embed"
	"io/fs"

	statikfs "github.com/rakyll/statik/fs"
)

//go:embed *.xml
var files embed.FS

func init() {
	data, err := archive(files)
	if err != nil {
		panic("scpd: " + err.Error())
	}

	statikfs.Register(data)
}

// archive packs the files into the zip layout expected by statik.
func archive(fsys fs.FS) (string, error) {
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)

	names, err := fs.Glob(fsys, "*.xml")
	if err != nil {
		return "", err
	}

	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return "", err
		}

		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			return "", err
		}
		if _, err := w.Write(data); err != nil {
			return "", err
		}
	}

	if err := zw.Close(); err != nil {
		return "", err
	}

	return buf.String(), nil
}

package indexer

import (
	"bytes"
	"fmt"
	"html/template"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/oshokin/conda-channel-resource/internal/repository/channel"
)

//nolint:gochecknoglobals // Parsed once, read-only.
var (
	channelPage = template.Must(template.New("channel").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<table>
<tr><th>Subdir</th><th>Packages</th></tr>
{{- range .Subdirs}}
<tr><td><a href="{{.Name}}/">{{.Name}}</a></td><td>{{.Packages}}</td></tr>
{{- end}}
</table>
</body>
</html>
`))

	subdirPage = template.Must(template.New("subdir").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}} / {{.Subdir}}</title></head>
<body>
<h1>{{.Title}} / {{.Subdir}}</h1>
<table>
<tr><th>Filename</th><th>Name</th><th>Version</th><th>Build</th><th>Size</th><th>SHA256</th></tr>
{{- range .Packages}}
<tr><td><a href="{{.Filename}}">{{.Filename}}</a></td><td>{{.Name}}</td><td>{{.Version}}</td><td>{{.Build}}</td><td>{{.Size}}</td><td>{{.SHA256}}</td></tr>
{{- end}}
</table>
<p><a href="repodata.json">repodata.json</a> <a href="repodata.json.bz2">repodata.json.bz2</a></p>
</body>
</html>
`))
)

type subdirRow struct {
	Name     string
	Packages int
}

type packageRow struct {
	Filename string
	Name     string
	Version  string
	Build    string
	Size     int64
	SHA256   string
}

func writePages(root billy.Filesystem, data *channel.Data, title string) error {
	rows := make([]subdirRow, 0, len(data.Subdirs()))

	for _, subdir := range data.Subdirs() {
		var packages []packageRow

		for entry := range data.Entries("", "") {
			if entry.Subdir != subdir {
				continue
			}

			packages = append(packages, packageRow{
				Filename: entry.Filename,
				Name:     entry.Record.Name,
				Version:  entry.Record.Version,
				Build:    entry.Record.Build,
				Size:     entry.Record.Size,
				SHA256:   entry.Record.SHA256,
			})
		}

		err := render(root, path.Join(subdir, indexPage), subdirPage, map[string]any{
			"Title":    title,
			"Subdir":   subdir,
			"Packages": packages,
		})
		if err != nil {
			return err
		}

		rows = append(rows, subdirRow{Name: subdir, Packages: len(packages)})
	}

	return render(root, indexPage, channelPage, map[string]any{
		"Title":   title,
		"Subdirs": rows,
	})
}

func render(root billy.Filesystem, name string, tmpl *template.Template, data any) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	if err := util.WriteFile(root, name, buf.Bytes(), filePermissions); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}

package generator

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"go/format"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"unicode"

	"github.com/google/renameio/v2/maybe"

	"github.com/autopeer-io/denhub/pkg/device"
)

const (
	// MainFileName is the generated entry point.
	MainFileName = "main.go"

	// HandlerFileName holds the generated command handlers.
	HandlerFileName = "handler.go"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

// File is one generated source file.
type File struct {
	Path    string
	Content []byte
	// Existing is true when the file was already on disk.
	Existing bool
	// Changed is false when Content equals the file on disk.
	Changed bool
}

// Result lists the files produced by Generate and the commands that got a
// new handler.
type Result struct {
	Main    File
	Handler File
	Added   []string
}

type stubArg struct {
	Name string
	Spec string
	Pad  string
}

type stub struct {
	Name        string
	Method      string
	Description string
	Args        []stubArg
}

// MethodName is the Go method generated for a command.
func MethodName(command string) string {
	r := []rune(command)
	r[0] = unicode.ToUpper(r[0])
	return "cmd" + string(r)
}

// Generate builds main.go and handler.go in dir for the commands of cfg.
// Existing files are kept: main.go is only created when missing, and
// handler.go only gets a stub for each command it does not handle yet.
func Generate(cfg *device.Config, dir string) (*Result, error) {
	if cfg.Commands == nil || cfg.Commands.Len() == 0 {
		return nil, errors.New("commands undefined in the configuration")
	}

	res := &Result{}

	mainPath := filepath.Join(dir, MainFileName)
	main, existing, err := readOrRender(mainPath, "main.go.tmpl", cfg)
	if err != nil {
		return nil, err
	}
	res.Main = File{Path: mainPath, Content: main, Existing: existing, Changed: !existing}

	handlerPath := filepath.Join(dir, HandlerFileName)
	handler, existing, err := readOrRender(handlerPath, "handler.go.tmpl", cfg)
	if err != nil {
		return nil, err
	}

	src := string(handler)
	var buf bytes.Buffer
	buf.WriteString(strings.TrimRight(src, "\n"))
	for _, name := range cfg.Commands.Names() {
		if err := ValidateHandlerName(name); err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if strings.Contains(src, fmt.Sprintf("commands[%q]", name)) {
			continue
		}
		method := MethodName(name)
		if strings.Contains(src, ") "+method+"(") {
			return nil, fmt.Errorf("%s: method %s already exists for another command", name, method)
		}

		def, _ := cfg.Commands.Get(name)
		s := stub{Name: name, Method: method, Description: strings.Join(strings.Fields(def.Description), " ")}
		longest := 0
		for _, a := range def.Arguments {
			longest = max(longest, len(a.Name))
		}
		for _, a := range def.Arguments {
			s.Args = append(s.Args, stubArg{Name: a.Name, Spec: strings.Join(strings.Fields(a.Spec), " "), Pad: strings.Repeat(" ", longest-len(a.Name))})
		}

		var out bytes.Buffer
		if err := templates.ExecuteTemplate(&out, "stub.go.tmpl", s); err != nil {
			return nil, err
		}
		buf.Write(out.Bytes())
		src += out.String()
		res.Added = append(res.Added, name)
	}
	buf.WriteByte('\n')

	formatted, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("format %s: %w", handlerPath, err)
	}
	res.Handler = File{
		Path:     handlerPath,
		Content:  formatted,
		Existing: existing,
		Changed:  !existing || !bytes.Equal(formatted, handler),
	}

	return res, nil
}

// Write saves the changed files of res.
func (res *Result) Write() error {
	for _, f := range []File{res.Main, res.Handler} {
		if !f.Changed {
			continue
		}
		if err := maybe.WriteFile(f.Path, f.Content, 0o644); err != nil { //nolint:gosec
			return err
		}
	}
	return nil
}

func readOrRender(path, tmpl string, cfg *device.Config) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		return data, true, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, tmpl, cfg); err != nil {
		return nil, false, err
	}
	return buf.Bytes(), false, nil
}

package project

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
)

// Stack is what detection learned about a project layout.
type Stack struct {
	Name         string // node, go, django, rust, procfile
	StartCommand string
}

// Detect inspects marker files in root and returns the first stack that
// yields a start command.
func Detect(root string) (Stack, bool) {
	detectors := []func(string) (Stack, bool){
		detectNode,
		detectGo,
		detectDjango,
		detectRust,
		detectProcfile,
	}
	for _, detect := range detectors {
		if stack, ok := detect(root); ok {
			return stack, true
		}
	}
	return Stack{}, false
}

type packageJSON struct {
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	PackageManager string            `json:"packageManager"`
	Scripts        map[string]string `json:"scripts"`
}

func readPackageJSON(root string) (*packageJSON, error) {
	data, err := os.ReadFile(filepath.Join(root, "package.json"))
	if err != nil {
		return nil, err
	}
	var pkg packageJSON
	// Tolerate comments and trailing commas.
	if err := json.Unmarshal(jsonc.ToJSON(data), &pkg); err != nil {
		return nil, err
	}
	return &pkg, nil
}

func detectNode(root string) (Stack, bool) {
	pkg, err := readPackageJSON(root)
	if err != nil {
		return Stack{}, false
	}
	pm := packageManager(root, pkg.PackageManager)
	for _, script := range []string{"dev", "start"} {
		if _, ok := pkg.Scripts[script]; ok {
			return Stack{Name: "node", StartCommand: pm + " run " + script}, true
		}
	}
	return Stack{}, false
}

// packageManager honours the packageManager field ("pnpm@9.1.0"), then
// lockfiles, then npm.
func packageManager(root, field string) string {
	if name, _, ok := strings.Cut(field, "@"); ok {
		switch name {
		case "npm", "pnpm", "yarn", "bun":
			return name
		}
	}
	lockfiles := []struct{ file, pm string }{
		{"pnpm-lock.yaml", "pnpm"},
		{"yarn.lock", "yarn"},
		{"bun.lockb", "bun"},
		{"bun.lock", "bun"},
	}
	for _, l := range lockfiles {
		if fileExists(filepath.Join(root, l.file)) {
			return l.pm
		}
	}
	return "npm"
}

func detectGo(root string) (Stack, bool) {
	if !fileExists(filepath.Join(root, "go.mod")) {
		return Stack{}, false
	}
	return Stack{Name: "go", StartCommand: "go run ."}, true
}

func detectDjango(root string) (Stack, bool) {
	if !fileExists(filepath.Join(root, "manage.py")) {
		return Stack{}, false
	}
	return Stack{Name: "django", StartCommand: "python manage.py runserver"}, true
}

func detectRust(root string) (Stack, bool) {
	if !fileExists(filepath.Join(root, "Cargo.toml")) {
		return Stack{}, false
	}
	return Stack{Name: "rust", StartCommand: "cargo run"}, true
}

func detectProcfile(root string) (Stack, bool) {
	f, err := os.Open(filepath.Join(root, "Procfile"))
	if err != nil {
		return Stack{}, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		name, cmd, ok := strings.Cut(scanner.Text(), ":")
		if ok && strings.TrimSpace(name) == "web" && strings.TrimSpace(cmd) != "" {
			return Stack{Name: "procfile", StartCommand: strings.TrimSpace(cmd)}, true
		}
	}
	return Stack{}, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

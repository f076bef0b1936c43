package packager

import (
	"os"
	"path/filepath"
	"testing"

	"go.mediahub.dev/mediahub/pkg/container"
	"go.mediahub.dev/mediahub/pkg/manifest"
)

func TestPackageBuildsLoadableAppContainer(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test app\nkind: app\ntarget: root\n")
	mustWriteFile(t, filepath.Join(root, "index.html"), "<html></html>")
	mustWriteFile(t, filepath.Join(root, "app.js"), "console.log(1)")

	output := filepath.Join(t.TempDir(), "out.pkg")
	if err := Package(root, output); err != nil {
		t.Fatalf("Package: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	pkg, err := container.Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if pkg.Manifest.Name != "test app" {
		t.Errorf("Manifest.Name = %q, want %q", pkg.Manifest.Name, "test app")
	}
	if pkg.Manifest.Media.Type != manifest.KindApp {
		t.Fatalf("Media.Type = %q, want %q", pkg.Manifest.Media.Type, manifest.KindApp)
	}
	if _, content, ok := pkg.File("index.html"); !ok || string(content) != "<html></html>" {
		t.Errorf("File(index.html) = %q, %v, want %q, true", content, ok, "<html></html>")
	}
}

func TestPackageRejectsEmptyDirectory(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: empty\nkind: comic\n")

	err := Package(root, filepath.Join(t.TempDir(), "out.pkg"))
	if _, ok := err.(NoPagesError); !ok {
		t.Fatalf("Package of directory with only metadata.yaml: err = %v, want NoPagesError", err)
	}
}

func TestPackageRejectsOutputInsideRoot(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test app\nkind: app\ntarget: root\n")
	mustWriteFile(t, filepath.Join(root, "index.html"), "<html></html>")

	err := Package(root, filepath.Join(root, "out.pkg"))
	if _, ok := err.(OutputInRootError); !ok {
		t.Fatalf("Package with output inside root: err = %v, want OutputInRootError", err)
	}
}

func TestPackageAppMissingIndexRejected(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test app\nkind: app\ntarget: root\n")
	mustWriteFile(t, filepath.Join(root, "app.js"), "console.log(1)")

	err := Package(root, filepath.Join(t.TempDir(), "out.pkg"))
	if _, ok := err.(IndexError); !ok {
		t.Fatalf("Package of app with no index.html: err = %v, want IndexError", err)
	}
}

func TestPackageComicRejectsLeadingZero(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test comic\nkind: comic\n")
	mustWriteFile(t, filepath.Join(root, "00.jpg"), "page zero")

	err := Package(root, filepath.Join(t.TempDir(), "out.pkg"))
	if _, ok := err.(InvalidPageError); !ok {
		t.Fatalf("Package of comic with leading-zero page: err = %v, want InvalidPageError", err)
	}
}

func TestPackageComicRejectsGap(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test comic\nkind: comic\n")
	mustWriteFile(t, filepath.Join(root, "0.jpg"), "page zero")
	mustWriteFile(t, filepath.Join(root, "2.jpg"), "page two")

	err := Package(root, filepath.Join(t.TempDir(), "out.pkg"))
	pm, ok := err.(PageMissingError)
	if !ok {
		t.Fatalf("Package of comic with a page gap: err = %v, want PageMissingError", err)
	}
	if pm.Page != 1 {
		t.Errorf("PageMissingError.Page = %d, want 1", pm.Page)
	}
}

func TestPackageBuildsLoadableComicContainer(t *testing.T) {
	root := t.TempDir()
	mustWriteFile(t, filepath.Join(root, "metadata.yaml"), "name: test comic\nkind: comic\n")
	mustWriteFile(t, filepath.Join(root, "0.jpg"), "page zero")
	mustWriteFile(t, filepath.Join(root, "1.jpg"), "page one")

	output := filepath.Join(t.TempDir(), "out.pkg")
	if err := Package(root, output); err != nil {
		t.Fatalf("Package: %v", err)
	}

	f, err := os.Open(output)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()

	pkg, err := container.Load(f)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, content, ok := pkg.File("0"); !ok || string(content) != "page zero" {
		t.Errorf("File(0) = %q, %v, want %q, true", content, ok, "page zero")
	}
	if _, content, ok := pkg.File("1"); !ok || string(content) != "page one" {
		t.Errorf("File(1) = %q, %v, want %q, true", content, ok, "page one")
	}
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

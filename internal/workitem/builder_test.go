package workitem_test

import (
	"path/filepath"
	"testing"

	"github.com/skaphos/reposync/internal/model"
	"github.com/skaphos/reposync/internal/workitem"
)

func repos() []model.RemoteRepo {
	return []model.RemoteRepo{
		{ID: "1", Name: "widgets", Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}},
		{ID: "2", Name: "gadgets", Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme"}, Archived: true},
	}
}

func TestDefaultFilterExcludesArchived(t *testing.T) {
	items := workitem.Build(repos(), workitem.Options{Root: "/root"})
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d: %+v", len(items), items)
	}
	if items[0].Repo.Name != "widgets" {
		t.Fatalf("unexpected surviving repo: %+v", items[0])
	}
}

func TestDefaultFilterIncludeArchived(t *testing.T) {
	items := workitem.Build(repos(), workitem.Options{Root: "/root", Filter: workitem.DefaultFilter(true)})
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
}

func TestBuildSelectByName(t *testing.T) {
	items := workitem.Build(repos(), workitem.Options{Root: "/root", Filter: workitem.DefaultFilter(true), Select: "gadgets"})
	if len(items) != 1 || items[0].Repo.Name != "gadgets" {
		t.Fatalf("unexpected selection result: %+v", items)
	}
}

func TestBuildSelectByID(t *testing.T) {
	items := workitem.Build(repos(), workitem.Options{Root: "/root", Filter: workitem.DefaultFilter(true), Select: "2"})
	if len(items) != 1 || items[0].Repo.ID != "2" {
		t.Fatalf("unexpected selection result: %+v", items)
	}
}

func TestLocalPath(t *testing.T) {
	r := model.RemoteRepo{Name: "widgets", Kind: model.ProviderGitHub, Scope: model.ProviderScope{"acme", "platform"}}
	got := workitem.LocalPath("/mirror", r)
	want := filepath.Join("/mirror", "github", "acme", "platform", "widgets")
	if got != want {
		t.Fatalf("LocalPath: got %q want %q", got, want)
	}
}

func TestArchivePath(t *testing.T) {
	got := workitem.ArchivePath("/mirror", "20260101T000000Z", model.ProviderGitLab, model.ProviderScope{"acme"}, "widgets")
	want := filepath.Join("/mirror", "_archive", "20260101T000000Z", "gitlab", "acme", "widgets")
	if got != want {
		t.Fatalf("ArchivePath: got %q want %q", got, want)
	}
}

package app

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/subtreetag"
	"github.com/louisbranch/contentstream/internal/services/content/domain/workspace"
	"github.com/louisbranch/contentstream/internal/services/content/projection/tagindex"
	"github.com/louisbranch/contentstream/internal/services/content/storage/memory"
)

const testDimensions = `
dimensions:
  language:
    default: en
    values:
      en:
        specializations:
          en_US: {}
      de: {}
`

func buildContent(t *testing.T) *Content {
	t.Helper()
	catalog, err := dimension.ParseYAML(strings.NewReader(testDimensions))
	if err != nil {
		t.Fatalf("parse dimensions: %v", err)
	}
	content, err := Build(context.Background(), memory.NewStore(), Options{Catalog: catalog, RootWorkspace: "live"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return content
}

func tagCommand(t *testing.T, typ command.Type, stream, aggregate, tag string, points ...dimensionspace.Point) command.Command {
	t.Helper()
	data, err := json.Marshal(subtreetag.Payload{
		AggregateID:    aggregate,
		Tag:            tag,
		AffectedPoints: dimensionspace.NewPointSet(points...),
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return command.Command{StreamID: stream, Type: typ, PayloadJSON: data}
}

func TestBuildCreatesRootWorkspaceOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for range 2 {
		if _, err := Build(ctx, store, Options{RootWorkspace: "live"}); err != nil {
			t.Fatalf("build: %v", err)
		}
	}
	content, err := Build(ctx, store, Options{})
	if err != nil {
		t.Fatalf("build without root: %v", err)
	}
	list, err := content.Workspaces.List(ctx)
	if err != nil {
		t.Fatalf("list workspaces: %v", err)
	}
	if len(list) != 1 || list[0].Name != "live" {
		t.Fatalf("workspaces = %+v, want only live", list)
	}
}

func TestBuildRequiresStore(t *testing.T) {
	if _, err := Build(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected nil store to be rejected")
	}
}

func TestTagCommandsFlowIntoTagIndex(t *testing.T) {
	ctx := context.Background()
	content := buildContent(t)

	live, err := content.Workspaces.Get(ctx, "live")
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	stream := string(live.ContentStreamID)
	en := dimensionspace.MustPoint(map[string]string{"language": "en"})
	de := dimensionspace.MustPoint(map[string]string{"language": "de"})

	if _, err := content.Handler.Handle(ctx, tagCommand(t, subtreetag.CommandTag, stream, "page-1", "hidden", en, de)); err != nil {
		t.Fatalf("tag: %v", err)
	}
	if _, err := content.Handler.Handle(ctx, tagCommand(t, subtreetag.CommandUntag, stream, "page-1", "hidden", en)); err != nil {
		t.Fatalf("untag: %v", err)
	}
	if _, err := content.Subscriptions.CatchUp(ctx, tagindex.Name); err != nil {
		t.Fatalf("catch up: %v", err)
	}

	atEN, err := content.Tags.InheritedTagsAt(ctx, live.ContentStreamID, "child", []string{"page-1"}, en)
	if err != nil {
		t.Fatalf("tags at en: %v", err)
	}
	atDE, err := content.Tags.InheritedTagsAt(ctx, live.ContentStreamID, "child", []string{"page-1"}, de)
	if err != nil {
		t.Fatalf("tags at de: %v", err)
	}
	if atEN.Contains("hidden") || !atDE.Contains("hidden") {
		t.Fatalf("tags en = %v de = %v, want hidden only at de", atEN.Strings(), atDE.Strings())
	}
}

func TestTagOutsideAllowedSubspaceIsRejected(t *testing.T) {
	ctx := context.Background()
	content := buildContent(t)
	live, err := content.Workspaces.Get(ctx, "live")
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	fr := dimensionspace.MustPoint(map[string]string{"language": "fr"})
	_, err = content.Handler.Handle(ctx, tagCommand(t, subtreetag.CommandTag, string(live.ContentStreamID), "page-1", "hidden", fr))
	if !errors.Is(err, dimensionspace.ErrPointNotInAllowedSubspace) {
		t.Fatalf("error = %v, want ErrPointNotInAllowedSubspace", err)
	}
}

func TestChildWorkspaceSeesBaseTagsAfterRebase(t *testing.T) {
	ctx := context.Background()
	content := buildContent(t)
	if _, err := content.Workspaces.Create(ctx, "draft", "live"); err != nil {
		t.Fatalf("create draft: %v", err)
	}
	live, err := content.Workspaces.Get(ctx, "live")
	if err != nil {
		t.Fatalf("get live: %v", err)
	}
	en := dimensionspace.MustPoint(map[string]string{"language": "en"})
	if _, err := content.Handler.Handle(ctx, tagCommand(t, subtreetag.CommandTag, string(live.ContentStreamID), "page-1", "hidden", en)); err != nil {
		t.Fatalf("tag live: %v", err)
	}

	rebased, err := content.Workspaces.Rebase(ctx, "draft", workspace.RebaseOptions{})
	if err != nil {
		t.Fatalf("rebase: %v", err)
	}
	if !rebased.Failed.IsEmpty() {
		t.Fatalf("failed = %s, want none", rebased.Failed)
	}
	if _, err := content.Subscriptions.CatchUp(ctx, tagindex.Name); err != nil {
		t.Fatalf("catch up: %v", err)
	}
	tags, err := content.Tags.TagsAt(ctx, rebased.Workspace.ContentStreamID, "page-1", en)
	if err != nil {
		t.Fatalf("tags: %v", err)
	}
	if !tags.Contains("hidden") {
		t.Fatalf("draft tags = %v, want hidden inherited through fork", tags.Strings())
	}
}

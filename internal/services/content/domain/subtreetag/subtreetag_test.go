package subtreetag

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	apperrors "github.com/louisbranch/contentstream/internal/platform/errors"
	"github.com/louisbranch/contentstream/internal/services/content/domain/command"
	"github.com/louisbranch/contentstream/internal/services/content/domain/contentstream"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimension"
	"github.com/louisbranch/contentstream/internal/services/content/domain/dimensionspace"
	"github.com/louisbranch/contentstream/internal/services/content/domain/engine"
	"github.com/louisbranch/contentstream/internal/services/content/domain/event"
	"github.com/louisbranch/contentstream/internal/services/content/storage/memory"
)

var (
	p1 = dimensionspace.MustPoint(map[string]string{"language": "en"})
	p2 = dimensionspace.MustPoint(map[string]string{"language": "de"})
)

func TestParseTag(t *testing.T) {
	valid := []string{"hidden", "a", "disabled_2", "v1.0-beta", strings.Repeat("x", 36)}
	for _, value := range valid {
		if _, err := ParseTag(value); err != nil {
			t.Fatalf("ParseTag(%q) = %v, want ok", value, err)
		}
	}
	invalid := []string{"", "Hidden", "with space", "ümlaut", strings.Repeat("x", 37), "a/b"}
	for _, value := range invalid {
		_, err := ParseTag(value)
		if !errors.Is(err, ErrInvalidTag) {
			t.Fatalf("ParseTag(%q) error = %v, want ErrInvalidTag", value, err)
		}
		if apperrors.Class(err) != apperrors.ClassValidation {
			t.Fatalf("ParseTag(%q) class = %q, want validation", value, apperrors.Class(err))
		}
	}
}

func TestTagsSet(t *testing.T) {
	tags := NewTags("b", "a", "b", "c")
	if got := strings.Join(tags.Strings(), ","); got != "a,b,c" {
		t.Fatalf("tags = %s, want a,b,c", got)
	}
	if !tags.Contains("b") || tags.Contains("d") {
		t.Fatal("Contains mismatch")
	}
	if got := tags.Without("b").With("d"); !got.Equal(NewTags("a", "c", "d")) {
		t.Fatalf("Without/With = %v", got.Strings())
	}
	if got := NewTags("a").Union(NewTags("c", "a")); got.Len() != 2 {
		t.Fatalf("Union = %v", got.Strings())
	}

	data, err := json.Marshal(tags)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `["a","b","c"]` {
		t.Fatalf("json = %s", data)
	}
	var decoded Tags
	if err := json.Unmarshal([]byte(`["z","a"]`), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !decoded.Equal(NewTags("a", "z")) {
		t.Fatalf("decoded = %v", decoded.Strings())
	}
	if err := json.Unmarshal([]byte(`["BAD"]`), &decoded); !errors.Is(err, ErrInvalidTag) {
		t.Fatalf("unmarshal invalid error = %v", err)
	}
}

type fixture struct {
	handler engine.Handler
}

func newFixture(t *testing.T, resolver *dimensionspace.Resolver) fixture {
	t.Helper()
	store := memory.NewStore()
	registry := engine.NewRegistry()
	if err := Register(registry, resolver); err != nil {
		t.Fatalf("register: %v", err)
	}
	streams := contentstream.NewStreams(store)
	if _, err := streams.Create(context.Background(), "live", event.Metadata{}); err != nil {
		t.Fatalf("create stream: %v", err)
	}
	return fixture{handler: engine.Handler{Registry: registry, Streams: streams}}
}

func (f fixture) run(t *testing.T, cmdType command.Type, aggregate, tag string, points ...dimensionspace.Point) (engine.Result, error) {
	t.Helper()
	payload, err := json.Marshal(Payload{AggregateID: aggregate, Tag: tag, AffectedPoints: dimensionspace.NewPointSet(points...)})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return f.handler.Handle(context.Background(), command.Command{StreamID: "live", Type: cmdType, PayloadJSON: payload})
}

func (f fixture) grants(t *testing.T) Grants {
	t.Helper()
	history, err := f.handler.Streams.History(context.Background(), "live")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	grants, err := FoldGrants(history)
	if err != nil {
		t.Fatalf("fold grants: %v", err)
	}
	return grants
}

func TestUntagSubsetKeepsOtherPoints(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.run(t, CommandTag, "a", "hidden", p1, p2); err != nil {
		t.Fatalf("tag: %v", err)
	}
	if _, err := f.run(t, CommandUntag, "a", "hidden", p1); err != nil {
		t.Fatalf("untag: %v", err)
	}
	grants := f.grants(t)
	if grants.Active("a", "hidden", p1) {
		t.Fatal("P1 still reports hidden after untag")
	}
	if !grants.Active("a", "hidden", p2) {
		t.Fatal("P2 lost hidden although only P1 was untagged")
	}
}

func TestTagRejectsDuplicateGrant(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.run(t, CommandTag, "a", "hidden", p1); err != nil {
		t.Fatalf("tag: %v", err)
	}
	result, err := f.run(t, CommandTag, "a", "hidden", p1)
	var rejection *command.RejectionError
	if !errors.As(err, &rejection) || rejection.Rejections[0].Code != RejectionAlreadyTagged {
		t.Fatalf("duplicate tag error = %v, want %s", err, RejectionAlreadyTagged)
	}
	if len(result.Events) != 0 {
		t.Fatalf("duplicate tag appended %d events", len(result.Events))
	}

	partial, err := f.run(t, CommandTag, "a", "hidden", p1, p2)
	if err != nil {
		t.Fatalf("partial tag: %v", err)
	}
	payload, err := event.Decode(partial.Events[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	tagged := payload.(event.SubtreeTagged)
	if !tagged.AffectedPoints.Equal(dimensionspace.NewPointSet(p2)) {
		t.Fatalf("affected points = %v, want only P2", tagged.AffectedPoints.ToArray())
	}
}

func TestUntagWithoutGrantIsRejected(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.run(t, CommandTag, "parent", "hidden", p1); err != nil {
		t.Fatalf("tag: %v", err)
	}
	_, err := f.run(t, CommandUntag, "child", "hidden", p1)
	var rejection *command.RejectionError
	if !errors.As(err, &rejection) || rejection.Rejections[0].Code != RejectionNotTagged {
		t.Fatalf("untag error = %v, want %s", err, RejectionNotTagged)
	}
}

func TestIndependentGrantsUnion(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.run(t, CommandTag, "parent", "hidden", p1); err != nil {
		t.Fatalf("tag parent: %v", err)
	}
	if _, err := f.run(t, CommandTag, "child", "hidden", p1); err != nil {
		t.Fatalf("tag child: %v", err)
	}
	if _, err := f.run(t, CommandTag, "parent", "archived", p1); err != nil {
		t.Fatalf("tag parent archived: %v", err)
	}
	if _, err := f.run(t, CommandUntag, "parent", "hidden", p1); err != nil {
		t.Fatalf("untag parent: %v", err)
	}

	grants := f.grants(t)
	got := grants.InheritedAt("child", []string{"parent"}, p1)
	if !got.Equal(NewTags("archived", "hidden")) {
		t.Fatalf("inherited = %v, want archived,hidden", got.Strings())
	}
	if got := grants.InheritedAt("child", []string{"parent"}, p2); !got.IsEmpty() {
		t.Fatalf("inherited at P2 = %v, want none", got.Strings())
	}
}

func TestGrantsBuiltFromRows(t *testing.T) {
	var grants Grants
	grants.Grant("parent", "hidden", p1.Hash())
	grants.Grant("child", "archived", p1.Hash())
	grants.Grant("sibling", "pinned", p1.Hash())
	grants.Grant("child", "hidden", p2.Hash())

	got := grants.InheritedAt("child", []string{"parent"}, p1)
	if !got.Equal(NewTags("archived", "hidden")) {
		t.Fatalf("inherited = %v, want archived,hidden", got.Strings())
	}
	if got := grants.TagsAt("child", p2); !got.Equal(NewTags("hidden")) {
		t.Fatalf("tags at P2 = %v, want hidden", got.Strings())
	}
}

func TestInvalidPayloads(t *testing.T) {
	f := newFixture(t, nil)
	tests := []struct {
		name      string
		aggregate string
		tag       string
		points    []dimensionspace.Point
		want      error
	}{
		{name: "bad tag", aggregate: "a", tag: "NOPE", points: []dimensionspace.Point{p1}, want: ErrInvalidTag},
		{name: "no aggregate", aggregate: " ", tag: "hidden", points: []dimensionspace.Point{p1}, want: errAggregateRequired},
		{name: "no points", aggregate: "a", tag: "hidden", want: errPointsRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.run(t, CommandTag, tt.aggregate, tt.tag, tt.points...)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if apperrors.GetCode(err) != apperrors.CodeInvalidCommand {
				t.Fatalf("code = %s, want %s", apperrors.GetCode(err), apperrors.CodeInvalidCommand)
			}
		})
	}
}

func TestPointsOutsideSubspaceAreRejected(t *testing.T) {
	catalog, err := dimension.ParseYAML(strings.NewReader(`
language:
  default: en
  values:
    en: {}
`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	resolver, err := dimensionspace.NewResolver(catalog, dimensionspace.NewPointTable())
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	f := newFixture(t, resolver)
	if _, err := f.run(t, CommandTag, "a", "hidden", p1); err != nil {
		t.Fatalf("tag allowed point: %v", err)
	}
	_, err = f.run(t, CommandTag, "a", "hidden", p2)
	if !errors.Is(err, dimensionspace.ErrPointNotInAllowedSubspace) {
		t.Fatalf("error = %v, want ErrPointNotInAllowedSubspace", err)
	}
}

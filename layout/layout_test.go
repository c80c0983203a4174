package layout

import (
	"encoding/json"
	"math"
	"reflect"
	"testing"
)

func textNode(id string) Node {
	return Node{ID: id, Type: KindText, Content: Plain(id), Styles: Styles{}}
}

func ids(l Layout) []string {
	out := make([]string, len(l))
	for i, n := range l {
		out[i] = n.ID
	}
	return out
}

func TestAdd_Idempotent(t *testing.T) {
	n := textNode("n1")
	l := Layout{}.Add(n).Add(n)
	if len(l) != 1 {
		t.Fatalf("len = %d, want 1", len(l))
	}
	if l[0].ID != "n1" {
		t.Fatalf("id = %q", l[0].ID)
	}
}

func TestAdd_DuplicateReplacesInPlace(t *testing.T) {
	l := Layout{}.Add(textNode("a")).Add(textNode("b")).Add(textNode("c"))
	repl := textNode("b")
	repl.Content = Plain("replaced")
	l = l.Add(repl)

	if got := ids(l); !reflect.DeepEqual(got, []string{"a", "b", "c"}) {
		t.Fatalf("order = %v", got)
	}
	if l[1].Content.Text != "replaced" {
		t.Fatalf("content = %q, want replaced", l[1].Content.Text)
	}
}

func TestUpdateStyle_ShallowMerge(t *testing.T) {
	n := textNode("n1")
	n.Styles = Styles{"a": Number(1), "b": Number(2)}
	l := Layout{}.Add(n)

	l = l.UpdateStyle("n1", StylePatch{}.Set("b", Number(3)).Set("c", Number(4)))

	want := Styles{"a": Number(1), "b": Number(3), "c": Number(4)}
	if !reflect.DeepEqual(l[0].Styles, want) {
		t.Fatalf("styles = %v, want %v", l[0].Styles, want)
	}
}

func TestUpdateStyle_UnsetRemovesKey(t *testing.T) {
	n := textNode("n1")
	n.Styles = Styles{Color: String("#000"), Padding: String("4px")}
	l := Layout{}.Add(n).UpdateStyle("n1", StylePatch{}.Unset(Color))

	if _, ok := l[0].Styles.Get(Color); ok {
		t.Fatal("color still set after unset")
	}
	if l[0].Styles.Str(Padding) != "4px" {
		t.Fatal("padding lost")
	}
}

func TestUpdateStyle_MissingIDNoop(t *testing.T) {
	l := Layout{}.Add(textNode("n1"))
	got := l.UpdateStyle("missing", StylePatch{}.Set(Color, String("red")))
	if !reflect.DeepEqual(got, l) {
		t.Fatal("layout changed for missing id")
	}
}

func TestTransitionsArePure(t *testing.T) {
	n := textNode("n1")
	n.Styles = Styles{Color: String("#000")}
	base := Layout{}.Add(n)
	snapshot := base.Clone()

	_ = base.UpdateStyle("n1", StylePatch{}.Set(Color, String("#fff")))
	_ = base.UpdateContent("n1", Plain("changed"))
	_ = base.Delete("n1")
	_ = base.Add(textNode("n2"))

	if !reflect.DeepEqual(base, snapshot) {
		t.Fatalf("receiver mutated: %+v", base)
	}
}

func TestDelete_RemovesExactlyOne(t *testing.T) {
	l := Layout{}
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		l = l.Add(textNode(id))
	}
	out := l.Delete("c")
	if len(out) != len(l)-1 {
		t.Fatalf("len = %d, want %d", len(out), len(l)-1)
	}
	if out.Index("c") >= 0 {
		t.Fatal("c still present")
	}
	if got := ids(out); !reflect.DeepEqual(got, []string{"a", "b", "d", "e"}) {
		t.Fatalf("order = %v", got)
	}
}

func TestDelete_OrphansChildren(t *testing.T) {
	section := Node{ID: "s1", Type: KindSection, Styles: Styles{}}
	child := textNode("c1")
	child.ParentID = "s1"
	l := Layout{}.Add(section).Add(child)

	if got := l.Children("s1"); len(got) != 1 {
		t.Fatalf("children = %d, want 1", len(got))
	}

	l = l.Delete("s1")
	if len(l) != 1 || l[0].ID != "c1" {
		t.Fatalf("layout = %v, want [c1]", ids(l))
	}
	if l[0].ParentID != "s1" {
		t.Fatalf("parentId = %q, want dangling s1", l[0].ParentID)
	}
	if orphans := l.Orphans(); len(orphans) != 1 {
		t.Fatalf("orphans = %d, want 1", len(orphans))
	}
}

func TestContentUpdates(t *testing.T) {
	card := Node{ID: "k1", Type: KindCard, Styles: Styles{}}
	l := Layout{}.Add(card)

	l = l.UpdateContent("k1", Plain("Title|Body|Go"))
	want := Content{Title: "Title", Description: "Body", CTA: "Go"}
	if l[0].Content != want {
		t.Fatalf("content = %+v, want %+v", l[0].Content, want)
	}

	l = l.PatchContent("k1", FieldCTA, "Buy")
	if l[0].Content.CTA != "Buy" || l[0].Content.Title != "Title" {
		t.Fatalf("patched content = %+v", l[0].Content)
	}

	l = l.UpdateImage("k1", "https://img.example/x.png").UpdateLink("k1", "https://example.com")
	if l[0].ImageSrc != "https://img.example/x.png" || l[0].LinkURL != "https://example.com" {
		t.Fatalf("image/link = %q %q", l[0].ImageSrc, l[0].LinkURL)
	}
}

func TestTextContentKeepsPipes(t *testing.T) {
	l := Layout{}.Add(textNode("t1")).UpdateContent("t1", Plain("a|b"))
	if l[0].Content.Text != "a|b" {
		t.Fatalf("text = %q, want a|b", l[0].Content.Text)
	}
}

func TestReset(t *testing.T) {
	l := Layout{}.Add(textNode("a")).Add(textNode("b"))
	if got := l.Reset(); len(got) != 0 {
		t.Fatalf("len = %d after reset", len(got))
	}
}

func TestMove(t *testing.T) {
	l := Layout{}.Add(textNode("a")).Add(textNode("b")).Add(textNode("c"))

	tests := []struct {
		id    string
		delta int
		want  []string
	}{
		{"c", -1, []string{"a", "c", "b"}},
		{"a", 1, []string{"b", "a", "c"}},
		{"a", -1, []string{"a", "b", "c"}},
		{"c", 5, []string{"a", "b", "c"}},
		{"a", 10, []string{"b", "c", "a"}},
		{"zz", 1, []string{"a", "b", "c"}},
		{"b", math.MaxInt, []string{"a", "c", "b"}},
		{"c", math.MaxInt, []string{"a", "b", "c"}},
		{"b", math.MinInt, []string{"b", "a", "c"}},
		{"a", math.MinInt, []string{"a", "b", "c"}},
	}
	for _, tt := range tests {
		if got := ids(l.Move(tt.id, tt.delta)); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Move(%s, %d) = %v, want %v", tt.id, tt.delta, got, tt.want)
		}
	}
}

func TestLayersAndRestack(t *testing.T) {
	a, b, c := textNode("a"), textNode("b"), textNode("c")
	a.Styles = Styles{ZIndex: Number(3)}
	c.Styles = Styles{ZIndex: Number(5)}
	l := Layout{}.Add(a).Add(b).Add(c)

	if got := ids(Layout(l.Layers())); !reflect.DeepEqual(got, []string{"c", "a", "b"}) {
		t.Fatalf("layers = %v", got)
	}

	p, ok := l.Restack("b", 1)
	if !ok {
		t.Fatal("restack b: not found")
	}
	l = l.UpdateStyle("b", p)
	if z := l[1].Styles.Num(ZIndex, 0); z != 2 {
		t.Fatalf("b zIndex = %v, want 2", z)
	}

	p, _ = l.Restack("b", -5)
	l = l.UpdateStyle("b", p)
	if z := l[1].Styles.Num(ZIndex, -1); z != 0 {
		t.Fatalf("b zIndex = %v, want 0", z)
	}

	if _, ok := l.Restack("missing", 1); ok {
		t.Fatal("restack missing: expected false")
	}
}

func TestNodeJSON_LegacyCompositeContent(t *testing.T) {
	raw := `{"id":"k1","type":"Card","content":"Hello|World|Click","styles":{"padding":"20px","x":12,"zIndex":"4"}}`
	var n Node
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		t.Fatal(err)
	}
	if n.Content.Title != "Hello" || n.Content.CTA != "Click" {
		t.Fatalf("content = %+v", n.Content)
	}
	if n.Styles.Num(X, 0) != 12 || n.Styles.Num(ZIndex, 0) != 4 {
		t.Fatalf("styles = %v", n.Styles)
	}

	out, err := json.Marshal(n)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(out, &back); err != nil {
		t.Fatal(err)
	}
	content, ok := back["content"].(map[string]any)
	if !ok || content["title"] != "Hello" {
		t.Fatalf("encoded content = %v", back["content"])
	}
	styles := back["styles"].(map[string]any)
	if styles["zIndex"] != float64(4) {
		t.Fatalf("encoded zIndex = %v", styles["zIndex"])
	}
}

func TestNewNode_Defaults(t *testing.T) {
	n := NewNode("node-1", KindButton)
	if n.Content.Text != "New Button" {
		t.Fatalf("content = %q", n.Content.Text)
	}
	if n.Styles.Str(Padding) != "20px" || n.Styles.Str(MarginTop) != "10px" || n.Styles.Str(BackgroundColor) != "#ffffff" {
		t.Fatalf("styles = %v", n.Styles)
	}
}

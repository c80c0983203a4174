package sanitize

import (
	"errors"
	"strings"
	"testing"

	"github.com/hazyhaar/canvas/layout"
	"github.com/hazyhaar/canvas/mutation"
)

func TestText(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Hello", "Hello"},
		{"Tom & Jerry", "Tom & Jerry"},
		{"<b>bold</b> move", "bold move"},
		{`<script>alert(1)</script>ok`, "ok"},
		{"a < b", "a < b"},
	}
	for _, c := range cases {
		if got := Text(c.in); got != c.want {
			t.Errorf("Text(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if got := Text(strings.Repeat("x", MaxTextLen+10)); len(got) != MaxTextLen {
		t.Errorf("Text did not truncate: len %d", len(got))
	}
}

func TestImageURL(t *testing.T) {
	ok := []string{"", "https://images.example.com/a.png", "/uploads/a.png", "data:image/png;base64,AAAA"}
	for _, u := range ok {
		if err := ImageURL(u); err != nil {
			t.Errorf("ImageURL(%q): %v", u, err)
		}
	}
	bad := []string{"javascript:alert(1)", "//evil.example/a.png", "ftp://x/y", "https:///nohost", "relative.png"}
	for _, u := range bad {
		if err := ImageURL(u); err == nil {
			t.Errorf("ImageURL(%q): expected error", u)
		}
	}
}

func TestLinkURL(t *testing.T) {
	for _, u := range []string{"#pricing", "mailto:hi@example.com", "tel:+331234", "https://example.com", "/about"} {
		if err := LinkURL(u); err != nil {
			t.Errorf("LinkURL(%q): %v", u, err)
		}
	}
	if err := LinkURL("JavaScript:void(0)"); !errors.Is(err, ErrUnsafeScheme) {
		t.Errorf("LinkURL(javascript): %v", err)
	}
}

func TestNode(t *testing.T) {
	n := layout.NewNode("node-1", layout.KindImage)
	n.Content = layout.Content{Title: "<i>Hi</i>"}
	n.ImageSrc = "javascript:alert(1)"
	n.Styles[layout.BackgroundColor] = layout.String("url(https://evil.example/x.png)")
	n.Styles[layout.Color] = layout.String("#333")

	got := Node(n)
	if got.Content.Title != "Hi" || got.ImageSrc != "" {
		t.Fatalf("node = %+v", got)
	}
	if _, ok := got.Styles.Get(layout.BackgroundColor); ok {
		t.Fatal("unsafe background kept")
	}
	if got.Styles.Str(layout.Color) != "#333" {
		t.Fatal("safe color dropped")
	}
	if _, ok := n.Styles.Get(layout.BackgroundColor); !ok {
		t.Fatal("input styles modified")
	}
}

func TestCheckNode(t *testing.T) {
	n := layout.NewNode("node-1", layout.KindCard)
	n.Content = layout.Content{Title: "Tom & Jerry", CTA: "a < b"}
	n.ImageSrc = "https://images.example.com/a.png"
	if err := CheckNode(n); err != nil {
		t.Fatalf("clean node: %v", err)
	}

	marked := n
	marked.Content.Description = "<i>Hi</i>"
	if err := CheckNode(marked); !errors.Is(err, ErrMarkup) {
		t.Fatalf("markup: %v", err)
	}
	long := n
	long.Content.Text = strings.Repeat("x", MaxTextLen+1)
	if err := CheckNode(long); !errors.Is(err, ErrTooLong) {
		t.Fatalf("long text: %v", err)
	}
	img := n
	img.ImageSrc = "javascript:alert(1)"
	if err := CheckNode(img); !errors.Is(err, ErrUnsafeScheme) {
		t.Fatalf("image: %v", err)
	}
	styled := layout.NewNode("node-2", layout.KindText)
	styled.Styles[layout.BackgroundColor] = layout.String("url(https://evil.example/x.png)")
	if err := CheckNode(styled); !errors.Is(err, ErrUnsafeStyle) {
		t.Fatalf("style: %v", err)
	}
}

func TestMutation(t *testing.T) {
	if err := Mutation(mutation.PatchContent("actor-a", "node-1", layout.FieldTitle, "Sale & more")); err != nil {
		t.Fatalf("plain patch: %v", err)
	}

	rejected := []mutation.Mutation{
		mutation.PatchContent("actor-a", "node-1", layout.FieldTitle, "<b>Sale</b>"),
		mutation.UpdateContent("actor-a", "node-1", layout.Plain("<b>hi</b>")),
		mutation.Add("actor-a", layout.Node{ID: "node-2", Type: layout.KindText, Content: layout.Plain("<script>x</script>")}),
	}
	for _, m := range rejected {
		if err := Mutation(m); !errors.Is(err, mutation.ErrValidation) || !errors.Is(err, ErrMarkup) {
			t.Errorf("%s: %v", m.Type, err)
		}
	}

	err := Mutation(mutation.UpdateLink("actor-a", "node-1", "javascript:alert(1)"))
	if !errors.Is(err, mutation.ErrValidation) || !errors.Is(err, ErrUnsafeScheme) {
		t.Fatalf("unsafe link: %v", err)
	}

	patch := layout.StylePatch{}.Set(layout.Width, layout.String("expression(alert(1))"))
	if err := Mutation(mutation.UpdateStyle("actor-a", "node-1", patch)); !errors.Is(err, ErrUnsafeStyle) {
		t.Fatalf("unsafe style: %v", err)
	}

	if err := Mutation(mutation.Delete("actor-a", "node-1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

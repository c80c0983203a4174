package export

import (
	"bytes"
	"strings"
	"testing"

	"github.com/hazyhaar/canvas/layout"
)

func sample() layout.Layout {
	nav := layout.NewNode("nav", layout.KindNavbar)
	nav.Content = layout.Content{Title: "Acme", CTA: "Sign up"}
	nav.LinkURL = "https://acme.test/signup"

	sec := layout.NewNode("hero", layout.KindSection)
	sec.Content = layout.Content{Title: "Welcome", Description: "Build pages together"}

	back := layout.NewNode("t-back", layout.KindText)
	back.ParentID = "hero"
	back.Content = layout.Plain("behind")
	back.Styles[layout.X] = layout.Number(10)
	back.Styles[layout.Y] = layout.Number(20)
	back.Styles[layout.ZIndex] = layout.Number(1)

	front := layout.NewNode("t-front", layout.KindText)
	front.ParentID = "hero"
	front.Content = layout.Plain("in front")
	front.Styles[layout.ZIndex] = layout.Number(5)

	img := layout.NewNode("img", layout.KindImage)
	img.ImageSrc = "javascript:alert(1)"

	orphan := layout.NewNode("lost", layout.KindText)
	orphan.ParentID = "gone"
	orphan.Content = layout.Plain("orphaned text")

	footer := layout.NewNode("foot", layout.KindFooter)
	footer.Content = layout.Plain("<script>x</script>(c) Acme")

	return layout.Layout{nav, sec, front, back, img, orphan, footer}
}

func TestHTML(t *testing.T) {
	var buf bytes.Buffer
	if err := HTML(&buf, "Landing & co", sample()); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"<!DOCTYPE html>",
		"<title>Landing &amp; co</title>",
		`<nav id="nav" data-kind="Navbar"`,
		`<a href="https://acme.test/signup">Sign up</a>`,
		"<h2>Welcome</h2>",
		"left: 10px; top: 20px",
		"z-index: 5",
		"background-color: #ffffff",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}

	if strings.Contains(out, "orphaned text") {
		t.Error("orphan rendered")
	}
	if strings.Contains(out, "javascript:") || strings.Contains(out, "<script>") {
		t.Errorf("unsafe content leaked:\n%s", out)
	}

	// Positioned children paint in zIndex order and sit inside their section.
	hero := out[strings.Index(out, `id="hero"`):]
	hero = hero[:strings.Index(hero, "</section>")]
	if b, f := strings.Index(hero, "behind"), strings.Index(hero, "in front"); b < 0 || f < 0 || b > f {
		t.Errorf("children order wrong in section: %s", hero)
	}

	// Sequence order for root nodes.
	if strings.Index(out, "<nav") > strings.Index(out, "<section") || strings.Index(out, "<section") > strings.Index(out, "<footer") {
		t.Error("root nodes out of sequence order")
	}
}

func TestHTML_SkipsUnsafeCustomStyle(t *testing.T) {
	n := layout.NewNode("t", layout.KindText)
	n.Styles["boxShadow"] = layout.String("0 0 2px #000")
	n.Styles["bad key"] = layout.String("red")
	n.Styles["background"] = layout.String("url(https://x.test/a.png)")
	n.Styles["outline"] = layout.String("red; position: fixed")

	var buf bytes.Buffer
	if err := HTML(&buf, "", layout.Layout{n}); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "box-shadow: 0 0 2px #000") {
		t.Errorf("custom style dropped:\n%s", out)
	}
	for _, bad := range []string{"bad key", "url(", "position: fixed"} {
		if strings.Contains(out, bad) {
			t.Errorf("output contains %q", bad)
		}
	}
}

func TestMarkdown(t *testing.T) {
	md, err := Markdown("Landing", sample())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(md, "# Landing\n") {
		t.Errorf("missing title heading:\n%s", md)
	}
	for _, want := range []string{"## Welcome", "Build pages together", "[Sign up](https://acme.test/signup)"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestParseFormat(t *testing.T) {
	cases := map[string]Format{"": FormatHTML, "HTML": FormatHTML, "md": FormatMarkdown, "markdown": FormatMarkdown}
	for in, want := range cases {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("pdf"); err == nil {
		t.Error("pdf accepted")
	}
}

func TestKebab(t *testing.T) {
	if got := kebab("borderTopLeftRadius"); got != "border-top-left-radius" {
		t.Fatalf("kebab = %q", got)
	}
}

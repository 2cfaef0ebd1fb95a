package xmlstream

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedAll pushes the whole document in one chunk and collects the events.
func feedAll(t *testing.T, doc string) []ParseEvent {
	t.Helper()
	s := NewElementStream(Limits{})
	events, err := s.Feed([]byte(doc))
	require.NoError(t, err)
	return events
}

// summarize flattens events into comparable strings so the same document
// fed under different chunkings can be checked for identical output.
func summarize(events []ParseEvent) []string {
	var out []string
	for _, ev := range events {
		switch ev.Kind {
		case RootOpened:
			out = append(out, "open "+ev.Element.OpenTag())
		case ChildCompleted:
			out = append(out, "child "+ev.Element.XML())
		case RootClosed:
			out = append(out, "close "+ev.Element.Name)
		}
	}
	return out
}

const sampleDoc = `<?xml version="1.0"?><!-- preamble --><stream to="example.com" version="1.0">` +
	`<message id="1"><body>hello &amp; goodbye</body></message>` +
	`<presence/>` +
	`<note><![CDATA[a < b]]></note>` +
	`</stream>`

func TestFeedWholeDocument(t *testing.T) {
	events := feedAll(t, sampleDoc)

	require.Equal(t, []string{
		`open <stream to="example.com" version="1.0">`,
		`child <message id="1"><body>hello &amp; goodbye</body></message>`,
		`child <presence/>`,
		`child <note>a &lt; b</note>`,
		`close stream`,
	}, summarize(events))
}

func TestFeedChunkingIndependence(t *testing.T) {
	want := summarize(feedAll(t, sampleDoc))

	chunkings := map[string][]int{
		"byte-by-byte": nil,
		"pairs":        {2},
		"uneven":       {1, 7, 3, 40, 2, 11},
	}
	for name, sizes := range chunkings {
		t.Run(name, func(t *testing.T) {
			s := NewElementStream(Limits{})
			var got []ParseEvent
			rest := sampleDoc
			i := 0
			for len(rest) > 0 {
				n := 1
				if len(sizes) > 0 {
					n = sizes[i%len(sizes)]
					i++
				}
				if n > len(rest) {
					n = len(rest)
				}
				events, err := s.Feed([]byte(rest[:n]))
				require.NoError(t, err)
				got = append(got, events...)
				rest = rest[n:]
			}
			assert.Equal(t, want, summarize(got))
		})
	}
}

func TestRootNotifiedBeforeChildren(t *testing.T) {
	events := feedAll(t, `<root a="1"><child/>`)

	require.Len(t, events, 2)
	assert.Equal(t, RootOpened, events[0].Kind)
	assert.Equal(t, "root", events[0].Element.Name)
	assert.Equal(t, ChildCompleted, events[1].Kind)
}

func TestDeepDescendantsNotReportedIndividually(t *testing.T) {
	events := feedAll(t, `<root><a><b><c/></b></a>`)

	require.Len(t, events, 2)
	child := events[1].Element
	assert.Equal(t, "a", child.Name)
	require.Len(t, child.Children, 1)
	assert.Equal(t, "b", child.Children[0].Name)
	require.Len(t, child.Children[0].Children, 1)
	assert.Equal(t, "c", child.Children[0].Children[0].Name)
}

func TestRootDoesNotRetainChildren(t *testing.T) {
	s := NewElementStream(Limits{})
	_, err := s.Feed([]byte(`<root><a/><b/><c/>`))
	require.NoError(t, err)

	assert.Empty(t, s.Root().Children)
}

func TestSelfClosingRoot(t *testing.T) {
	events := feedAll(t, `<root/>`)

	require.Len(t, events, 2)
	assert.Equal(t, RootOpened, events[0].Kind)
	assert.Equal(t, RootClosed, events[1].Kind)
}

func TestWhitespaceOutsideRootIgnored(t *testing.T) {
	events := feedAll(t, "\n\t <root> ")

	require.Len(t, events, 1)
	assert.Equal(t, RootOpened, events[0].Kind)
}

func TestTextOutsideRootRejected(t *testing.T) {
	s := NewElementStream(Limits{})
	_, err := s.Feed([]byte("junk<root>"))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestContentAfterDocumentEndRejected(t *testing.T) {
	for name, doc := range map[string]string{
		"element": "<r/><z/>",
		"text":    "<r/>leftover",
		"end-tag": "<r></r></r>",
	} {
		t.Run(name, func(t *testing.T) {
			s := NewElementStream(Limits{})
			_, err := s.Feed([]byte(doc))
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestTextAfterDocumentEndWithoutFollowingMarkup(t *testing.T) {
	s := NewElementStream(Limits{})
	_, err := s.Feed([]byte("<r/>"))
	require.NoError(t, err)

	events, err := s.Feed([]byte("leftover"))

	assert.Empty(t, events)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "document end")
}

func TestWhitespaceAfterDocumentEndAllowed(t *testing.T) {
	s := NewElementStream(Limits{})

	_, err := s.Feed([]byte("<r/>\n\t "))

	require.NoError(t, err)
}

func TestTextBeforeRootWithoutFollowingMarkup(t *testing.T) {
	s := NewElementStream(Limits{})

	_, err := s.Feed([]byte("junk"))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "outside document element")
}

func TestMalformedInputRejected(t *testing.T) {
	for name, doc := range map[string]string{
		"mismatched end tag":  "<root><a></b>",
		"end without open":    "</root>",
		"bare ampersand":      "<root>&</root>",
		"undefined entity":    "<root>&bogus;</root>",
		"unquoted attribute":  "<root a=1>",
		"duplicate attribute": "<root a='1' a='2'>",
		"tag inside tag":      "<root <a>>",
		"bad element name":    "<1root>",
	} {
		t.Run(name, func(t *testing.T) {
			s := NewElementStream(Limits{})
			_, err := s.Feed([]byte(doc))
			var parseErr *ParseError
			require.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestFailureIsTerminal(t *testing.T) {
	s := NewElementStream(Limits{})

	_, first := s.Feed([]byte("<root></mismatch>"))
	require.Error(t, first)

	events, second := s.Feed([]byte("<root><a/>"))
	assert.Empty(t, events)
	assert.Same(t, first, second)
}

func TestEventsBeforeFailureStillReturned(t *testing.T) {
	s := NewElementStream(Limits{})

	events, err := s.Feed([]byte("<root><ok/></broken>"))

	require.Error(t, err)
	assert.Equal(t, []string{"open <root>", "child <ok/>"}, summarize(events))
}

func TestEntityDecoding(t *testing.T) {
	events := feedAll(t, `<root><m a="&lt;&gt;&quot;">&amp;&apos;&#65;&#x42;</m>`)

	m := events[1].Element
	a, _ := m.Attr("a")
	assert.Equal(t, `<>"`, a)
	assert.Equal(t, "&'AB", m.Text)
}

func TestPrologAndDirectivesSkipped(t *testing.T) {
	doc := `<?xml version="1.0" encoding="UTF-8"?>` +
		`<!DOCTYPE stream [<!ENTITY greeting "hi">]>` +
		`<!-- comment with <tag> inside -->` +
		`<root>`
	events := feedAll(t, doc)

	require.Len(t, events, 1)
	assert.Equal(t, RootOpened, events[0].Kind)
}

func TestCommentSplitAcrossChunks(t *testing.T) {
	s := NewElementStream(Limits{})

	events, err := s.Feed([]byte("<root><!-- half "))
	require.NoError(t, err)
	require.Len(t, events, 1)

	events, err = s.Feed([]byte("comment --><a/>"))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a", events[0].Element.Name)
}

func TestMaxDepthEnforced(t *testing.T) {
	s := NewElementStream(Limits{MaxDepth: 2})

	_, err := s.Feed([]byte("<a><b>"))
	require.NoError(t, err)

	_, err = s.Feed([]byte("<c>"))
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "depth")
}

func TestMaxAttrsEnforced(t *testing.T) {
	s := NewElementStream(Limits{MaxAttrs: 2})

	_, err := s.Feed([]byte(`<r a="1" b="2" c="3">`))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "attributes")
}

func TestMaxTokenSizeEnforced(t *testing.T) {
	s := NewElementStream(Limits{MaxTokenSize: 16})

	_, err := s.Feed([]byte("<root>" + strings.Repeat("x", 64)))

	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	assert.Contains(t, parseErr.Reason, "exceeds")
}

func TestTextCoalescesAcrossChunks(t *testing.T) {
	s := NewElementStream(Limits{})

	_, err := s.Feed([]byte("<root><m>hel"))
	require.NoError(t, err)
	_, err = s.Feed([]byte("lo wor"))
	require.NoError(t, err)
	events, err := s.Feed([]byte("ld</m>"))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "hello world", events[0].Element.Text)
}

func TestEntitySplitAcrossChunks(t *testing.T) {
	s := NewElementStream(Limits{})

	_, err := s.Feed([]byte("<root><m>a &a"))
	require.NoError(t, err)
	events, err := s.Feed([]byte("mp; b</m>"))
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.Equal(t, "a & b", events[0].Element.Text)
}

func TestManyChildrenSequentially(t *testing.T) {
	s := NewElementStream(Limits{})
	_, err := s.Feed([]byte("<root>"))
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		events, err := s.Feed(fmt.Appendf(nil, `<item n="%d"/>`, i))
		require.NoError(t, err)
		require.Len(t, events, 1)
		n, _ := events[0].Element.Attr("n")
		assert.Equal(t, fmt.Sprint(i), n)
	}
	assert.Empty(t, s.Root().Children)
}

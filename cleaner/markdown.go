package cleaner

import (
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
)

// newMarkdownConverter builds the shared HTML-to-Markdown converter. One
// instance serves all requests; html-to-markdown converters are goroutine-safe.
//
// The table plugin matters most here: spec sheets and variant matrices arrive
// as <table> markup, and flattening them to prose destroys the attribute/value
// pairing the extraction model depends on. Minimal cell padding keeps those
// tables intact while costing far fewer tokens than column-aligned output.
func newMarkdownConverter() *converter.Converter {
	return converter.NewConverter(
		converter.WithPlugins(
			base.NewBasePlugin(), // drops script/style/head noise up front
			commonmark.NewCommonmarkPlugin(),
			table.NewTablePlugin(
				table.WithCellPaddingBehavior(table.CellPaddingBehaviorMinimal),
			),
		),
	)
}

// ToMarkdown renders cleaned HTML as Markdown. domain anchors relative links
// and image sources to absolute URLs, so identifiers hiding in hrefs (variant
// SKUs, canonical product paths) survive the conversion.
func ToMarkdown(conv *converter.Converter, htmlContent string, domain string) (string, error) {
	return conv.ConvertString(htmlContent, converter.WithDomain(domain))
}

// Copyright (c) 2026 Shuhai. All rights reserved.

package artifact

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/wenqiu/shuhai/internal/core/book"
)

// # EPUB3 Assembly
//
// Layout inside the container:
//
//	mimetype                 (stored, first entry)
//	META-INF/container.xml
//	OEBPS/content.opf
//	OEBPS/nav.xhtml          (volume-grouped)
//	OEBPS/toc.ncx            (legacy readers)
//	OEBPS/style.css
//	OEBPS/cover.jpg          (when a cover is cached)
//	OEBPS/chapter-%04d.xhtml

const epubStylesheet = `body { margin: 5% 4%; line-height: 1.7; }
h2 { text-align: center; margin: 1.5em 0; }
p { text-indent: 2em; margin: 0.4em 0; }
`

/*
writeEpub assembles a conforming EPUB3 file at path via a temp file and
rename, so readers never observe a half-written container.

Parameters:
  - path: string (Final artifact path; parent directory must exist)
  - owner: *book.Book (Title, author and identifier metadata)
  - sections: []section (Completed chapters in index order)
  - cover: []byte (JPEG bytes, nil for a coverless book)
  - meta: Metadata (Deployment language and publisher)

Returns:
  - error: Any filesystem or encoding failure; the temp file is removed
*/
func writeEpub(path string, owner *book.Book, sections []section, cover []byte, meta Metadata) error {
	temp, err := os.CreateTemp(filepath.Dir(path), ".epub-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp epub: %w", err)
	}
	defer os.Remove(temp.Name())

	archive := zip.NewWriter(temp)

	// The mimetype entry must come first and must not be compressed.
	mimetype, err := archive.CreateHeader(&zip.FileHeader{
		Name:   "mimetype",
		Method: zip.Store,
	})
	if err != nil {
		return err
	}
	if _, err := mimetype.Write([]byte("application/epub+zip")); err != nil {
		return err
	}

	entries := []struct {
		name string
		body string
	}{
		{"META-INF/container.xml", containerXML()},
		{"OEBPS/content.opf", packageOPF(owner, sections, cover != nil, meta)},
		{"OEBPS/nav.xhtml", navXHTML(owner, sections)},
		{"OEBPS/toc.ncx", tocNCX(owner, sections)},
		{"OEBPS/style.css", epubStylesheet},
	}
	for _, entry := range entries {
		if err := addEntry(archive, entry.name, []byte(entry.body)); err != nil {
			return err
		}
	}

	if cover != nil {
		if err := addEntry(archive, "OEBPS/cover.jpg", cover); err != nil {
			return err
		}
	}

	for _, chapter := range sections {
		body := chapterXHTML(chapter)
		if err := addEntry(archive, chapterEntryName(chapter.Index), []byte(body)); err != nil {
			return err
		}
	}

	if err := archive.Close(); err != nil {
		return fmt.Errorf("artifact: finalize epub: %w", err)
	}
	if err := temp.Close(); err != nil {
		return err
	}

	return os.Rename(temp.Name(), path)
}

func addEntry(archive *zip.Writer, name string, body []byte) error {
	writer, err := archive.Create(name)
	if err != nil {
		return err
	}
	_, err = writer.Write(body)
	return err
}

func chapterEntryName(index int) string {
	return fmt.Sprintf("OEBPS/chapter-%04d.xhtml", index+1)
}

func chapterFileID(index int) string {
	return fmt.Sprintf("chapter-%04d", index+1)
}

// # Container Documents

func containerXML() string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<container version="1.0" xmlns="urn:oasis:names:tc:opendocument:xmlns:container">
  <rootfiles>
    <rootfile full-path="OEBPS/content.opf" media-type="application/oebps-package+xml"/>
  </rootfiles>
</container>
`
}

func packageOPF(owner *book.Book, sections []section, hasCover bool, meta Metadata) string {
	var builder strings.Builder

	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<package xmlns="http://www.idpf.org/2007/opf" version="3.0" unique-identifier="book-id">
  <metadata xmlns:dc="http://purl.org/dc/elements/1.1/">
`)
	fmt.Fprintf(&builder, "    <dc:identifier id=\"book-id\">urn:uuid:%s</dc:identifier>\n", owner.ID)
	fmt.Fprintf(&builder, "    <dc:title>%s</dc:title>\n", html.EscapeString(owner.Title))
	fmt.Fprintf(&builder, "    <dc:creator>%s</dc:creator>\n", html.EscapeString(owner.Author))
	fmt.Fprintf(&builder, "    <dc:language>%s</dc:language>\n", html.EscapeString(meta.Language))
	if meta.Publisher != "" {
		fmt.Fprintf(&builder, "    <dc:publisher>%s</dc:publisher>\n", html.EscapeString(meta.Publisher))
	}
	fmt.Fprintf(&builder, "    <meta property=\"dcterms:modified\">%s</meta>\n",
		time.Now().UTC().Format("2006-01-02T15:04:05Z"))
	builder.WriteString("  </metadata>\n  <manifest>\n")

	builder.WriteString("    <item id=\"nav\" href=\"nav.xhtml\" media-type=\"application/xhtml+xml\" properties=\"nav\"/>\n")
	builder.WriteString("    <item id=\"ncx\" href=\"toc.ncx\" media-type=\"application/x-dtbncx+xml\"/>\n")
	builder.WriteString("    <item id=\"css\" href=\"style.css\" media-type=\"text/css\"/>\n")
	if hasCover {
		builder.WriteString("    <item id=\"cover\" href=\"cover.jpg\" media-type=\"image/jpeg\" properties=\"cover-image\"/>\n")
	}
	for _, chapter := range sections {
		fmt.Fprintf(&builder, "    <item id=%q href=\"%s.xhtml\" media-type=\"application/xhtml+xml\"/>\n",
			chapterFileID(chapter.Index), chapterFileID(chapter.Index))
	}
	builder.WriteString("  </manifest>\n  <spine toc=\"ncx\">\n")
	for _, chapter := range sections {
		fmt.Fprintf(&builder, "    <itemref idref=%q/>\n", chapterFileID(chapter.Index))
	}
	builder.WriteString("  </spine>\n</package>\n")

	return builder.String()
}

// navXHTML groups chapters under their volume names; books without
// volumes render a single flat list.
func navXHTML(owner *book.Book, sections []section) string {
	var builder strings.Builder

	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml" xmlns:epub="http://www.idpf.org/2007/ops">
<head><title>`)
	builder.WriteString(html.EscapeString(owner.Title))
	builder.WriteString(`</title></head>
<body>
  <nav epub:type="toc" id="toc">
    <h1>目录</h1>
    <ol>
`)

	grouped := len(volumeNames(sections)) > 0
	if !grouped {
		for _, chapter := range sections {
			fmt.Fprintf(&builder, "      <li><a href=\"%s.xhtml\">%s</a></li>\n",
				chapterFileID(chapter.Index), html.EscapeString(chapter.Title))
		}
	} else {
		current := ""
		open := false
		for _, chapter := range sections {
			if chapter.Volume != current {
				if open {
					builder.WriteString("        </ol>\n      </li>\n")
				}
				current = chapter.Volume
				fmt.Fprintf(&builder, "      <li><span>%s</span>\n        <ol>\n",
					html.EscapeString(volumeLabel(current)))
				open = true
			}
			fmt.Fprintf(&builder, "          <li><a href=\"%s.xhtml\">%s</a></li>\n",
				chapterFileID(chapter.Index), html.EscapeString(chapter.Title))
		}
		if open {
			builder.WriteString("        </ol>\n      </li>\n")
		}
	}

	builder.WriteString(`    </ol>
  </nav>
</body>
</html>
`)
	return builder.String()
}

func volumeNames(sections []section) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, chapter := range sections {
		if chapter.Volume == "" {
			continue
		}
		if _, ok := seen[chapter.Volume]; ok {
			continue
		}
		seen[chapter.Volume] = struct{}{}
		names = append(names, chapter.Volume)
	}
	return names
}

func volumeLabel(name string) string {
	if name == "" {
		return "正文"
	}
	return name
}

func tocNCX(owner *book.Book, sections []section) string {
	var builder strings.Builder

	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<ncx xmlns="http://www.daisy.org/z3986/2005/ncx/" version="2005-1">
  <head>
`)
	fmt.Fprintf(&builder, "    <meta name=\"dtb:uid\" content=\"urn:uuid:%s\"/>\n", owner.ID)
	builder.WriteString(`    <meta name="dtb:depth" content="1"/>
  </head>
`)
	fmt.Fprintf(&builder, "  <docTitle><text>%s</text></docTitle>\n", html.EscapeString(owner.Title))
	builder.WriteString("  <navMap>\n")
	for order, chapter := range sections {
		fmt.Fprintf(&builder, `    <navPoint id=%q playOrder="%d">
      <navLabel><text>%s</text></navLabel>
      <content src="%s.xhtml"/>
    </navPoint>
`, chapterFileID(chapter.Index), order+1, html.EscapeString(chapter.Title), chapterFileID(chapter.Index))
	}
	builder.WriteString("  </navMap>\n</ncx>\n")

	return builder.String()
}

// chapterXHTML renders one chapter body, one paragraph per non-empty line.
func chapterXHTML(chapter section) string {
	var builder strings.Builder

	builder.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE html>
<html xmlns="http://www.w3.org/1999/xhtml">
<head>
  <title>`)
	builder.WriteString(html.EscapeString(chapter.Title))
	builder.WriteString(`</title>
  <link rel="stylesheet" type="text/css" href="style.css"/>
</head>
<body>
`)
	fmt.Fprintf(&builder, "  <h2>%s</h2>\n", html.EscapeString(chapter.Title))

	for _, line := range strings.Split(chapter.Body, "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r"))
		if line == "" {
			continue
		}
		fmt.Fprintf(&builder, "  <p>%s</p>\n", html.EscapeString(line))
	}

	builder.WriteString("</body>\n</html>\n")
	return builder.String()
}

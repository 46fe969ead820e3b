package file

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"io"
	"path"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/net/html"

	"github.com/onlineimmigrant/move-plan-next-sub025/core"
)

const maxEPUBDocSize = 10 << 20

var ErrInvalidEPUB = core.NewValidationError(errors.New("this file is not a valid EPUB book"))

type (
	epubContainer struct {
		Rootfiles []struct {
			FullPath string `xml:"full-path,attr"`
		} `xml:"rootfiles>rootfile"`
	}

	opfPackage struct {
		Manifest []opfItem `xml:"manifest>item"`
		Spine    struct {
			TOC string `xml:"toc,attr"`
		} `xml:"spine"`
	}

	opfItem struct {
		ID         string `xml:"id,attr"`
		Href       string `xml:"href,attr"`
		MediaType  string `xml:"media-type,attr"`
		Properties string `xml:"properties,attr"`
	}

	ncxDoc struct {
		Points []ncxPoint `xml:"navMap>navPoint"`
	}

	ncxPoint struct {
		Label   string `xml:"navLabel>text"`
		Content struct {
			Src string `xml:"src,attr"`
		} `xml:"content"`
		Points []ncxPoint `xml:"navPoint"`
	}
)

// ReadTOC extracts the table of contents of an EPUB book: the EPUB 3 navigation document when
// the package declares one, the EPUB 2 NCX otherwise. Hrefs are relative to the root of the archive.
func ReadTOC(r io.ReaderAt, size int64) ([]TOCEntry, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, ErrInvalidEPUB
	}
	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	var container epubContainer
	if err := decodeXML(files, "META-INF/container.xml", &container); err != nil || len(container.Rootfiles) == 0 {
		return nil, ErrInvalidEPUB
	}
	opfPath := container.Rootfiles[0].FullPath
	var pkg opfPackage
	if err := decodeXML(files, opfPath, &pkg); err != nil {
		return nil, ErrInvalidEPUB
	}
	opfDir := path.Dir(opfPath)

	var ncxHref string
	for _, it := range pkg.Manifest {
		if hasProperty(it.Properties, "nav") {
			navPath := resolveHref(opfDir, it.Href)
			data, err := readZipFile(files, navPath)
			if err != nil {
				return nil, ErrInvalidEPUB
			}
			return parseNav(data, path.Dir(navPath))
		}
		if it.ID == pkg.Spine.TOC || it.MediaType == "application/x-dtbncx+xml" {
			ncxHref = it.Href
		}
	}
	if ncxHref == "" {
		return []TOCEntry{}, nil
	}

	ncxPath := resolveHref(opfDir, ncxHref)
	var ncx ncxDoc
	if err := decodeXML(files, ncxPath, &ncx); err != nil {
		return nil, ErrInvalidEPUB
	}
	entries := make([]TOCEntry, 0)
	flattenNCX(ncx.Points, 1, path.Dir(ncxPath), &entries)
	return entries, nil
}

func readZipFile(files map[string]*zip.File, name string) ([]byte, error) {
	f, ok := files[name]
	if !ok {
		return nil, errors.Errorf("%s: missing from archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxEPUBDocSize))
}

func decodeXML(files map[string]*zip.File, name string, v interface{}) error {
	data, err := readZipFile(files, name)
	if err != nil {
		return err
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	return dec.Decode(v)
}

func hasProperty(props, prop string) bool {
	for _, p := range strings.Fields(props) {
		if p == prop {
			return true
		}
	}
	return false
}

// resolveHref joins href to dir, keeping the fragment. Absolute URLs are returned as they are.
func resolveHref(dir, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.Contains(href, "://") {
		return href
	}
	p, frag := href, ""
	if i := strings.IndexByte(href, '#'); i >= 0 {
		p, frag = href[:i], href[i:]
	}
	if p == "" {
		return frag
	}
	return path.Join(dir, p) + frag
}

func flattenNCX(points []ncxPoint, level int, dir string, out *[]TOCEntry) {
	for _, np := range points {
		*out = append(*out, TOCEntry{
			Title: strings.Join(strings.Fields(np.Label), " "),
			Href:  resolveHref(dir, np.Content.Src),
			Level: level,
		})
		flattenNCX(np.Points, level+1, dir, out)
	}
}

func parseNav(data []byte, dir string) ([]TOCEntry, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, ErrInvalidEPUB
	}

	var navs []*html.Node
	var find func(n *html.Node)
	find = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "nav" {
			navs = append(navs, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			find(c)
		}
	}
	find(doc)
	if len(navs) == 0 {
		return []TOCEntry{}, nil
	}

	toc := navs[0]
	for _, n := range navs {
		if attrVal(n, "epub:type") == "toc" || attrVal(n, "type") == "toc" {
			toc = n
			break
		}
	}

	entries := make([]TOCEntry, 0)
	for c := toc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && c.Data == "ol" {
			walkNavList(c, 1, dir, &entries)
		}
	}
	return entries, nil
}

func walkNavList(ol *html.Node, level int, dir string, out *[]TOCEntry) {
	for li := ol.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		for c := li.FirstChild; c != nil; c = c.NextSibling {
			if c.Type != html.ElementNode {
				continue
			}
			switch c.Data {
			case "a", "span":
				*out = append(*out, TOCEntry{Title: textOf(c), Href: resolveHref(dir, attrVal(c, "href")), Level: level})
			case "ol":
				walkNavList(c, level+1, dir, out)
			}
		}
	}
}

func attrVal(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key || (a.Namespace != "" && a.Namespace+":"+a.Key == key) {
			return a.Val
		}
	}
	return ""
}

func textOf(n *html.Node) string {
	var words []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			words = append(words, strings.Fields(n.Data)...)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(words, " ")
}

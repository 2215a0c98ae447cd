// Package classify derives the per-record category tags TreeBuilder fans
// out attribute keys over: a fixed, ordered set of path regexes plus the
// single-character lstat file type. The tag vocabulary is small and closed
// (under 32 entries including the synthetic "type_<c>" fallbacks observed
// in practice), so a classified record's tag set is carried as a
// *roaring.Bitmap over interned tag ids rather than a []string. Each
// Classify call allocates one new bitmap.
package classify

import (
	"regexp"

	"github.com/RoaringBitmap/roaring"
)

// Well-known tag names. "other" and "*" and the four type tags are not
// regex-derived; they are always-present or fallback tags.
const (
	TagOther     = "other"
	TagAny       = "*"
	TagDirectory = "directory"
	TagFile      = "file"
	TagLink      = "link"
)

// rule pairs a tag name with the compiled regex that matches paths bearing it.
type rule struct {
	tag string
	re  *regexp.Regexp
}

// rules is deliberately ordered and fixed: every regex that matches a
// path contributes its tag, not just the first. Compiled once at package
// init, since the set never changes at runtime.
var rules = []rule{
	{"cram", regexp.MustCompile(`\.cram$`)},
	{"bam", regexp.MustCompile(`\.bam$`)},
	{"index", regexp.MustCompile(`\.(crai|bai|sai|fai|csi)$`)},
	{"compressed", regexp.MustCompile(`\.(bzip2|gz|tgz|zip|xz|bgz|bcf)$`)},
	{"uncompressed", regexp.MustCompile(`(\.sam|\.fasta|\.fastq|\.fa|\.fq|\.vcf|\.csv|\.tsv|\.txt|\.text|README|\.o|\.e|\.oe|\.dat)$`)},
	{"checkpoint", regexp.MustCompile(`jobstate\.context$`)},
	{"temporary", regexp.MustCompile(`(tmp|TMP|temp|TEMP)`)},
}

// Classifier derives tag sets for paths, interning tag names through the
// shared vocabulary table it owns.
type Classifier struct {
	idOf map[string]uint32
	tags []string
}

// New returns a Classifier with its tag vocabulary pre-seeded from the
// fixed rule table plus the always-present and file-type tags, so ids are
// stable across every record classified by this Classifier.
func New() *Classifier {
	c := &Classifier{idOf: make(map[string]uint32)}
	for _, r := range rules {
		c.tagID(r.tag)
	}
	c.tagID(TagOther)
	c.tagID(TagAny)
	c.tagID(TagDirectory)
	c.tagID(TagFile)
	c.tagID(TagLink)
	return c
}

func (c *Classifier) tagID(tag string) uint32 {
	if id, ok := c.idOf[tag]; ok {
		return id
	}
	id := uint32(len(c.tags))
	c.idOf[tag] = id
	c.tags = append(c.tags, tag)
	return id
}

// TagName returns the string tag for an id previously produced by Classify.
func (c *Classifier) TagName(id uint32) string {
	return c.tags[id]
}

// Classify returns the set of category tags for a record: every
// regex-matched tag, "other" if none matched, always "*", and exactly one
// type tag derived from the single-character lstat file type.
func (c *Classifier) Classify(path string, fileType byte) *roaring.Bitmap {
	bm := roaring.New()
	matched := false
	for _, r := range rules {
		if r.re.MatchString(path) {
			bm.Add(c.tagID(r.tag))
			matched = true
		}
	}
	if !matched {
		bm.Add(c.tagID(TagOther))
	}
	bm.Add(c.tagID(TagAny))
	bm.Add(typeTag(c, fileType))
	return bm
}

// typeTag maps the lstat file-type character to its tag id, interning a
// synthetic "type_<c>" tag for any character outside {d, f, l}.
func typeTag(c *Classifier, fileType byte) uint32 {
	switch fileType {
	case 'd':
		return c.tagID(TagDirectory)
	case 'f':
		return c.tagID(TagFile)
	case 'l':
		return c.tagID(TagLink)
	default:
		return c.tagID("type_" + string(fileType))
	}
}

// Tags decodes a bitmap produced by Classify back into tag name strings,
// for building composite attribute keys.
func (c *Classifier) Tags(bm *roaring.Bitmap) []string {
	out := make([]string, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		out = append(out, c.TagName(it.Next()))
	}
	return out
}

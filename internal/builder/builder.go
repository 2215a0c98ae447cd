// Package builder implements TreeBuilder: the streaming, line-oriented
// ingest pipeline. It decompresses each input lstat dump, tokenises one
// record per line, derives category tags and time-weighted cost
// attributes, and folds the result into the aggregation tree along the
// record's canonical insertion path.
package builder

import (
	"bufio"
	"compress/gzip"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/sirupsen/logrus"

	"github.com/wtsi-hgi/treeserve/internal/attrmap"
	"github.com/wtsi-hgi/treeserve/internal/classify"
	"github.com/wtsi-hgi/treeserve/internal/datum"
	"github.com/wtsi-hgi/treeserve/internal/identity"
	"github.com/wtsi-hgi/treeserve/internal/interner"
	"github.com/wtsi-hgi/treeserve/internal/tree"
)

// Derived-quantity constants for the time-weighted storage cost estimate.
const (
	SecondsInYear  = 31_536_000
	CostPerTiBYear = 150.0
	TiB            = 1024 * 1024 * 1024 * 1024
)

// recordFieldCount is the number of tab-separated fields expected per
// line: path, size, uid, gid, atime, mtime, ctime, type.
const recordFieldCount = 8

// maxLineSize bounds bufio.Scanner's token buffer. A base64-encoded path
// can be long; this is generous without being unbounded.
const maxLineSize = 1 << 20

// Builder is TreeBuilder. It owns the Tree and Interner it fills during
// Ingest, and the Classifier/identity.Resolver collaborators that derive
// each record's attributes.
type Builder struct {
	fs         billy.Filesystem
	log        *logrus.Logger
	tree       *tree.Tree
	interner   *interner.Interner
	classifier *classify.Classifier
	identity   *identity.Resolver
	now        func() time.Time

	linesSkipped  uint64
	filesSkipped  uint64
}

// New returns a Builder that reads input lstat dumps through fs, so
// production code can pass osfs.New("/") and tests can pass an in-memory
// memfs, without the builder itself knowing the difference.
func New(fs billy.Filesystem, log *logrus.Logger) *Builder {
	in := interner.New()
	return &Builder{
		fs:         fs,
		log:        log,
		tree:       tree.New(in),
		interner:   in,
		classifier: classify.New(),
		identity:   identity.NewResolver(),
		now:        time.Now,
	}
}

// Tree returns the tree being built. Safe to call only after Finalize, or
// from the same goroutine driving Ingest.
func (b *Builder) Tree() *tree.Tree {
	return b.tree
}

// LinesSkipped reports how many malformed lines were logged and skipped
// across every file ingested so far.
func (b *Builder) LinesSkipped() uint64 {
	return b.linesSkipped
}

// FilesSkipped reports how many input files failed to open or decompress,
// or hit a read error partway through. Records read from a file before a
// mid-file read error stay in the tree.
func (b *Builder) FilesSkipped() uint64 {
	return b.filesSkipped
}

// IngestAll reads every path in paths in turn. A failure opening or
// decompressing one input is logged and that input is skipped; ingest
// continues with the rest.
func (b *Builder) IngestAll(paths []string) {
	for _, path := range paths {
		if err := b.ingestFile(path); err != nil {
			b.filesSkipped++
			b.log.WithFields(logrus.Fields{"path": path, "err": err}).
				Error("failed to ingest lstat dump, skipping file")
		}
	}
}

// Finalize completes ingest: it runs the post-order synthetic-child pass
// over the tree, after which the tree is ready to publish.
func (b *Builder) Finalize() {
	b.tree.Finalize()
}

func (b *Builder) ingestFile(path string) error {
	f, err := b.fs.Open(path)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		if err := b.ingestLine(line); err != nil {
			b.linesSkipped++
			b.log.WithFields(logrus.Fields{"path": path, "line": lineNo, "err": err}).
				Warn("skipping malformed lstat record")
		}
	}
	return scanner.Err()
}

// record is one parsed, decoded lstat line.
type record struct {
	path     string
	size     uint64
	uid      uint32
	gid      uint32
	atime    int64
	mtime    int64
	ctime    int64
	fileType byte
}

func parseRecord(line string) (record, error) {
	fields := strings.Split(line, "\t")
	if len(fields) != recordFieldCount {
		return record{}, fmt.Errorf("expected %d fields, got %d", recordFieldCount, len(fields))
	}

	pathBytes, err := base64.StdEncoding.DecodeString(fields[0])
	if err != nil {
		return record{}, fmt.Errorf("path base64: %w", err)
	}

	size, err := strconv.ParseUint(fields[1], 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("size: %w", err)
	}
	uid, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return record{}, fmt.Errorf("uid: %w", err)
	}
	gid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return record{}, fmt.Errorf("gid: %w", err)
	}
	atime, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("atime: %w", err)
	}
	mtime, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("mtime: %w", err)
	}
	ctime, err := strconv.ParseInt(fields[6], 10, 64)
	if err != nil {
		return record{}, fmt.Errorf("ctime: %w", err)
	}
	if len(fields[7]) != 1 {
		return record{}, fmt.Errorf("file type: expected single character, got %q", fields[7])
	}

	return record{
		path:     string(pathBytes),
		size:     size,
		uid:      uint32(uid),
		gid:      uint32(gid),
		atime:    atime,
		mtime:    mtime,
		ctime:    ctime,
		fileType: fields[7][0],
	}, nil
}

func (b *Builder) ingestLine(line string) error {
	rec, err := parseRecord(line)
	if err != nil {
		return err
	}

	owner := b.identity.Owner(rec.uid)
	group := b.identity.Group(rec.gid)
	tagBitmap := b.classifier.Classify(rec.path, rec.fileType)
	tags := b.classifier.Tags(tagBitmap)

	im, err := b.buildAttributes(rec, group, owner, tags)
	if err != nil {
		return err
	}

	switch rec.fileType {
	case 'd':
		b.tree.AddNode(rec.path, im)
	case 'f', 'l':
		dir := parentDir(rec.path)
		if dir != "" {
			b.tree.AddNode(dir, im)
		}
	default:
		// Classification side effects are discarded along with im: only
		// directories, files and links are inserted into the tree.
	}
	return nil
}

// parentDir strips the final "/"-separated segment from path.
func parentDir(path string) string {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return ""
	}
	return trimmed[:idx]
}

// metricValue is one of the five attributes fanned out per classified
// property on a record: count, size, and the three age-weighted costs.
type metricValue struct {
	metric string
	value  datum.Datum
}

func (b *Builder) buildAttributes(rec record, group, owner string, tags []string) (*attrmap.Map, error) {
	now := b.now()
	tib := float64(rec.size) / float64(TiB)
	ageA := float64(now.Unix()-rec.atime) / SecondsInYear
	ageM := float64(now.Unix()-rec.mtime) / SecondsInYear
	ageC := float64(now.Unix()-rec.ctime) / SecondsInYear

	metrics := []metricValue{
		{"count", datum.NewInt(1)},
		{"size", datum.NewInt(rec.size)},
		{"atime", datum.NewFloat(CostPerTiBYear * tib * ageA)},
		{"mtime", datum.NewFloat(CostPerTiBYear * tib * ageM)},
		{"ctime", datum.NewFloat(CostPerTiBYear * tib * ageC)},
	}

	im := attrmap.New(b.interner)
	for _, property := range tags {
		for _, m := range metrics {
			for _, key := range fanOutKeys(m.metric, group, owner) {
				compositeKey, err := attrmap.NewKey(key.metric, key.group, key.user, property)
				if err != nil {
					return nil, err
				}
				im.AddItem(compositeKey, m.value)
			}
		}
	}
	return im, nil
}

type fanOutKey struct {
	metric string
	group  string
	user   string
}

// fanOutKeys returns the four (metric, group, user) combinations every
// attribute is fanned out over: any/any, this-group/any, any/this-user,
// this-group/this-user. Summing all four preserves arithmetic totals
// across the group and user dimensions.
func fanOutKeys(metric, group, user string) []fanOutKey {
	return []fanOutKey{
		{metric, "*", "*"},
		{metric, group, "*"},
		{metric, "*", user},
		{metric, group, user},
	}
}

package aggregate

import (
	"sort"
	"strings"

	"github.com/sdejongh/filenorris/pkg/compare"
	"github.com/sdejongh/filenorris/pkg/models"
)

// Group is one folder of the walked tree with its files
type Group struct {
	// Path is the backend path of the folder
	Path string

	// Label is Path relative to the walk root; "." for the root itself
	Label string

	Files []models.FileItem
}

// Result is the grouped outcome of a walk
type Result struct {
	Root   string
	Groups []Group

	// Folders and Files count every walked entry, shown or not
	Folders int
	Files   int

	// Truncated is set when MaxDepth or MaxItems cut the walk short
	Truncated bool

	Skipped []SkippedFolder
}

// RowKind tells header rows from file rows
type RowKind int

const (
	HeaderRow RowKind = iota
	FileRow
)

// Row is one display line
type Row struct {
	Kind  RowKind
	Label string
	Item  models.FileItem
}

// Rows renders the groups as headers each followed by their files
func (r Result) Rows() []Row {
	var rows []Row
	for _, g := range r.Groups {
		rows = append(rows, Row{Kind: HeaderRow, Label: g.Label})
		for _, f := range g.Files {
			rows = append(rows, Row{Kind: FileRow, Label: f.Name, Item: f})
		}
	}
	return rows
}

// label strips the walk root and its separator from p
func label(root, p string) string {
	rel := strings.TrimPrefix(p, root)
	rel = strings.TrimPrefix(rel, "/")
	if rel == "" {
		return "."
	}
	return rel
}

// build groups walked entries by parent folder. Two groups whose folders
// were both walked are ordered with the folder sort config; any other pair,
// including the walk root, falls back to case-insensitive path order.
func build(root string, items []internalItem, opts Options) Result {
	res := Result{Root: root}

	folders := map[string]models.FileItem{}
	files := map[string][]models.FileItem{}

	for _, it := range items {
		if it.item.IsDir {
			res.Folders++
			folders[it.item.Path] = it.item
		} else {
			res.Files++
			files[it.parentPath] = append(files[it.parentPath], it.item)
		}
	}

	// folders without files produce no group
	keys := make([]string, 0, len(files))
	for p := range files {
		keys = append(keys, p)
	}
	sort.Slice(keys, func(i, j int) bool { return lessPath(keys[i], keys[j]) })

	folderCmp := compare.New(opts.FolderSort)
	sort.SliceStable(keys, func(i, j int) bool {
		a, aok := folders[keys[i]]
		b, bok := folders[keys[j]]
		if aok && bok {
			return folderCmp.Compare(a, b) < 0
		}
		return lessPath(keys[i], keys[j])
	})

	for _, p := range keys {
		res.Groups = append(res.Groups, Group{
			Path:  p,
			Label: label(root, p),
			Files: compare.Sorted(files[p], opts.FileSort),
		})
	}
	return res
}

func lessPath(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

package filestore

import "strings"

// Category is the type bucket a stored file is placed under.
type Category string

const (
	CategoryImage Category = "image"
	CategoryVideo Category = "video"
	CategoryHTML  Category = "html"
	CategoryText  Category = "text"
	CategoryDoc   Category = "doc"
)

var extCategories = map[string]Category{
	"jpg":  CategoryImage,
	"jpeg": CategoryImage,
	"png":  CategoryImage,
	"gif":  CategoryImage,
	"webp": CategoryImage,
	"mp4":  CategoryVideo,
	"mov":  CategoryVideo,
	"avi":  CategoryVideo,
	"webm": CategoryVideo,
	"html": CategoryHTML,
	"htm":  CategoryHTML,
	"txt":  CategoryText,
}

var categoryFolders = map[Category]string{
	CategoryImage: "images",
	CategoryVideo: "videos",
	CategoryHTML:  "html",
	CategoryText:  "text",
	CategoryDoc:   "docs",
}

// Subfolders lists every placement folder, in a stable order.
var Subfolders = []string{"images", "videos", "html", "text", "docs"}

// Classify maps a filename to its category by lowercased extension.
// Unknown or missing extensions are CategoryDoc.
func Classify(name string) Category {
	if c, ok := extCategories[extension(name)]; ok {
		return c
	}
	return CategoryDoc
}

// Subfolder returns the storage folder for the category.
func (c Category) Subfolder() string {
	if f, ok := categoryFolders[c]; ok {
		return f
	}
	return categoryFolders[CategoryDoc]
}

// SubfolderFor returns the storage folder a file with this name belongs in.
func SubfolderFor(name string) string {
	return Classify(name).Subfolder()
}

// extension returns the lowercased text after the last dot, or "".
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i+1:])
}

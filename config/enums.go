package config

// Layout mode of the rendition.
// ENUM(paginated, scrolled)
type Flow int

// Specification of how book file name should be interpreted.
// ENUM(epub, directory)
type InputType int

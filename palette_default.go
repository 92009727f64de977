package kabe

var defaultBlocks = []BlockDefinition{
	{ID: "white_wool", Color: Color{255, 255, 255}},
	{ID: "black_wool", Color: Color{0, 0, 0}},
	{ID: "red_wool", Color: Color{255, 0, 0}},
	{ID: "green_wool", Color: Color{0, 255, 0}},
	{ID: "blue_wool", Color: Color{0, 0, 255}},
	{ID: "yellow_wool", Color: Color{255, 255, 0}},
	{ID: "orange_wool", Color: Color{255, 165, 0}},
	{ID: "light_gray_wool", Color: Color{200, 200, 200}},
	{ID: "gray_wool", Color: Color{100, 100, 100}},
	{ID: "brown_wool", Color: Color{139, 69, 19}},
	{ID: "cyan_wool", Color: Color{0, 255, 255}},
	{ID: "purple_wool", Color: Color{128, 0, 128}},
	{ID: "sandstone", Color: Color{237, 201, 175}},
	{ID: "stone", Color: Color{125, 125, 125}},
	{ID: "grass_block", Color: Color{127, 178, 56}},
	{ID: "water", Color: Color{64, 64, 255}},
	{ID: "lava", Color: Color{255, 69, 0}},
}

var defaultPalette = MustPalette(defaultBlocks...)

// DefaultPalette returns the built-in block palette.
func DefaultPalette() *Palette {
	return defaultPalette
}

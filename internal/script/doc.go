// Package script runs Lua programs against a command flow.
//
// A script sees one global table, hm, with a function per operation tag
// taking a parameter table, plus undo, redo and names:
//
//	hm.add_unf_rect_grid{name = "g1", p0 = {0, 0}, p1 = {1, 1}, nx = 4, ny = 4}
//	hm.move_geom{kind = "grid2", target = "g1", dx = 1, dy = 0}
//	hm.undo()
//	for _, n in ipairs(hm.names("grid2")) do print(n) end
//
// Every operation call is one AppendAndApply. A failing call raises a Lua
// error, so the script stops unless it wraps the call in pcall.
package script

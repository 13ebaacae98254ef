// Package export writes registry objects to mesh file formats.
//
// Writers see only kernel.Tables, never kernel handles, so any object
// that honors the table contract can be exported:
//
//	vtk   legacy ASCII unstructured grid (grid2, contour2, grid3)
//	msh   gmsh 2.2 ASCII (grid2 with triangle and quad cells)
//	json  the raw tables, keys sorted
package export

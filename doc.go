// Package watermark removes colored watermark overlays from scanned PDF
// documents.
//
// A scanned page is usually stored as one or more image XObjects stacked on
// top of each other. The package reassembles those strips into a single RGB
// canvas, replaces every pixel that is neither dark nor close to gray with
// white, and writes the cleaned pages back out as a PDF with one JPEG image per
// page. Vector graphics, text and document metadata are not preserved.
package watermark

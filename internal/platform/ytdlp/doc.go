// Package ytdlp adapts the external yt-dlp tool to the scheduler's fetch and
// metadata-probe contracts. The tool is invoked as a subprocess per
// operation; the scheduler treats each call as opaque, synchronous blocking
// I/O bounded only by the worker's context.
package ytdlp

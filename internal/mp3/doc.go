// Package mp3 handles encoding and segmentation of MP3 audio for
// paced delivery to live listeners.
//
// Encode transcodes raw PCM to a single MP3 bitstream via FFmpeg.
// Segment walks that bitstream, skips container metadata up to the
// first frame sync marker, and partitions the rest into fixed-size
// frames that are each sent as one transmission unit.
//
// The fixed-size split is an approximation tied to one encoder
// configuration (one 1152-sample frame at 8 kbps / 8 kHz is ~549
// bytes). Variable-bitrate streams need real frame header parsing,
// which this package does not do.
package mp3

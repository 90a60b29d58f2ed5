// Package pool
// Author: momentics <momentics@gmail.com>
//
// Reusable memory for the frame write path.
// Outgoing frames are assembled in pooled byte slices so a busy broadcast
// does not allocate one buffer per receiver.
package pool

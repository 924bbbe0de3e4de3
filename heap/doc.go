// Package heap implements a general-purpose allocator over a single growable region of bytes.
//
// Every block carries a 4-byte header and a matching 4-byte footer recording its size and whether it
// is allocated. Free blocks are threaded onto an explicit doubly linked list whose links live in the
// blocks' own payloads, and a freed block is immediately merged with free neighbors, so no two free
// blocks are ever adjacent. When nothing on the free list fits a request, the heap asks its
// source.Source for more memory and retries once.
//
// Pointers handed out by a Heap are offsets into its memory. Use Heap.Bytes to reach the payload; the
// returned slice is invalidated by any call that may grow the heap.
package heap

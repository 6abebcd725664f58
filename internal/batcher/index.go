package batcher

// Package batcher coalesces concurrent embedding requests into batches.
//
// Many callers submit small input sets; the Coordinator accumulates them in
// a single pending batch under two racing triggers (batch capacity and a
// deadline anchored to the first admission), dispatches each formed batch
// as one upstream inference call, and slices the returned embeddings back
// to the originating callers in submission order.
//
// Example configuration:
//
//	{
//	  "maxBatchSize": 8,
//	  "maxTotalInputs": 32,
//	  "maxWaitTimeMs": 3000
//	}

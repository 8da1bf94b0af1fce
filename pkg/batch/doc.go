// Package batch runs many independent requests in fixed-size batches:
// concurrent within a batch, strictly sequential across batches with a
// cooldown between them, one isolated outcome per input in input order.
package batch

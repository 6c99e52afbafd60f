// Package scoring computes the per-agent sub-scores (activity, engagement,
// quality, recency), the weighted overall score, and the trending delta.
//
// Every function here is a pure function of its inputs: the reference time is
// an explicit argument and identical snapshots always reproduce identical
// scores. Persistence and orchestration live in the rank package.
package scoring

// Package core contains the invocation dispatcher for pooled stateless
// components: contracts, call and transaction contexts, transaction
// policies, the instance pool and the deployment registry. Storage, metrics
// and logging adapters depend on this package; core must not depend on them.
package core

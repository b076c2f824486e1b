// Package notifier delivers short replies to users: upload acknowledgements,
// rejection explanations and command answers.
//
// Notify only enqueues. A small worker pool drains the queue through a token
// bucket and retries failed sends with jittered backoff. A rate-limit error
// from the transport is waited out for exactly the delay it carries, and
// permanent failures (the bot was blocked, the chat is gone) are not retried.
//
// Identical replies to the same chat within DedupWindow are collapsed, so a
// user pasting ten text messages gets one hint, not ten.
package notifier

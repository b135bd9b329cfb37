// Package queue provides the ordered hand-off queue that connects the stages
// of the speech pipeline. Consumers poll with a timeout so they can notice a
// cancelled session, producers close a stage with a single terminator, and
// Join lets a producer wait until everything it pushed has been processed.
package queue

//Package pose turns a stream of per-frame body keypoints into debounced action events.
//
//Frames flow through a Pipeline: the Detector yields zero or more bodies, the first body is pushed into a
//fixed size Window, the Window is converted into a fixed shape Tensor, the Classifier labels the Tensor,
//and a Debouncer decides whether the watched label should notify. Observers receive every step as a
//tagged Event, in the order the steps happen.
//
//The Pipeline is not safe for concurrent use. A Runner owns it and feeds it frames from a bounded inbox,
//dropping new frames when the pipeline falls behind.
package pose

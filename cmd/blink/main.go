// Command blink runs fatigue-study blink tracking.
//
//	blink serve              live study with the web dashboard
//	blink replay video.mp4   count blinks in a recording
//	blink monitor            follow a running dashboard's events
//	blink ctl <action>       drive a running dashboard
//	blink sessions           list archived sessions
package main

func main() {
	Execute()
}

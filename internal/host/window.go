package host

// AttachWindow hands the main window to the coordinator.
func (c *Coordinator) AttachWindow(w Window) {
	c.window = w
	c.windowState = Created

	w.OnClose(c.handleClose)
	w.OnClosed(c.handleClosed)
	w.OnReady(c.handleReady)
}

func (c *Coordinator) handleReady() {
	if c.windowState == Destroyed {
		return
	}
	if c.app.Config.StartMinimized() {
		c.log.Debug("starting minimized")
	} else {
		c.ShowWindow()
	}
	for _, fn := range c.readyHooks {
		fn()
	}
}

// handleClose hides the window instead of closing it unless the application
// is quitting. Bounds are persisted before hiding.
func (c *Coordinator) handleClose(e *CloseEvent) {
	if c.forceQuit.Load() {
		return
	}

	if err := c.app.Config.SetWindowBounds(c.window.Bounds()); err != nil {
		c.log.Warnf("failed to persist window bounds: %v", err)
	}
	e.PreventDefault()
	c.window.Hide()
	c.windowState = Hidden
}

func (c *Coordinator) handleClosed() {
	c.windowState = Destroyed
	c.log.Debug("window destroyed")
}

// ShowWindow makes the window visible.
func (c *Coordinator) ShowWindow() {
	if c.window == nil || c.windowState == Destroyed {
		return
	}
	c.window.Show()
	c.windowState = Visible
}

// HideWindow hides the window.
func (c *Coordinator) HideWindow() {
	if c.window == nil || c.windowState == Destroyed {
		return
	}
	c.window.Hide()
	c.windowState = Hidden
}

// ToggleWindow flips between visible and hidden.
func (c *Coordinator) ToggleWindow() {
	if c.windowState == Visible {
		c.HideWindow()
		return
	}
	c.ShowWindow()
}

// RequestQuit sets the ForceQuit latch, runs the quit hooks and closes the
// window for good. Later calls do nothing.
func (c *Coordinator) RequestQuit() {
	if c.forceQuit.Swap(true) {
		return
	}
	c.log.Info("quit requested")

	for _, fn := range c.quitHooks {
		fn()
	}
	if c.window != nil && c.windowState != Destroyed {
		c.window.Close()
	}
}

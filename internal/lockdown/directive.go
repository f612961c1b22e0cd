package lockdown

// Local control directives exchanged between the agent and the window
const (
	DirectiveSetStudentLock     = "set-student-lock"
	DirectiveCloseStudentWindow = "close-student-window"
	DirectiveReturnToLogin      = "return-to-login"
	DirectiveStoreClassCode     = "store-class-code"
)

// Directive is a fire-and-forget instruction to a Controller
type Directive struct {
	Name      string
	Locked    bool
	ClassCode string
}

func SetStudentLock(locked bool) Directive {
	return Directive{Name: DirectiveSetStudentLock, Locked: locked}
}

func CloseStudentWindow() Directive {
	return Directive{Name: DirectiveCloseStudentWindow}
}

func ReturnToLogin() Directive {
	return Directive{Name: DirectiveReturnToLogin}
}

func StoreClassCode(code string) Directive {
	return Directive{Name: DirectiveStoreClassCode, ClassCode: code}
}

// Apply executes d. Unknown directives are logged and ignored.
func (c *Controller) Apply(d Directive) {
	switch d.Name {
	case DirectiveSetStudentLock:
		if d.Locked {
			c.Lock()
		} else {
			c.Unlock()
		}
	case DirectiveCloseStudentWindow:
		c.CloseWindow()
	case DirectiveReturnToLogin:
		c.ReturnToLogin()
	case DirectiveStoreClassCode:
		c.StoreClassCode(d.ClassCode)
	default:
		c.logger.Warn("ignoring unknown directive", "directive", d.Name)
	}
}

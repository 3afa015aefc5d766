package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeConfiguration represents invalid or incomplete configuration
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeFilesystem represents source or snapshot directory failures
	ErrorTypeFilesystem ErrorType = "filesystem"
	// ErrorTypeExecutor represents a failed backup executor invocation
	ErrorTypeExecutor ErrorType = "executor"
	// ErrorTypeRetention represents a failed snapshot removal during GC
	ErrorTypeRetention ErrorType = "retention"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// NewRecoverableError creates an error that does not stop the remaining
// backup sets from being processed.
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	err := NewAppError(errorType, message, cause)
	err.Recoverable = true
	return err
}

// NewConfigurationError creates a fatal configuration error
func NewConfigurationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConfiguration, message, cause)
}

// NewFilesystemError creates a filesystem error
func NewFilesystemError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeFilesystem, message, cause)
}

// NewExecutorError creates a recoverable executor error
func NewExecutorError(message string, cause error) *AppError {
	return NewRecoverableError(ErrorTypeExecutor, message, cause)
}

// NewRetentionError creates a GC error; fatal for the affected set only
func NewRetentionError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRetention, message, cause)
}

// ErrorClassifier provides methods to classify and handle different types of errors
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if execErr := ec.classifyExecError(err); execErr != nil {
		return execErr
	}

	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyExecError classifies child process failures
func (ec *ErrorClassifier) classifyExecError(err error) *AppError {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return NewExecutorError(
			fmt.Sprintf("backup executor exited with status %d", exitErr.ExitCode()), err).
			WithContext("exit_code", exitErr.ExitCode())
	}
	if errors.Is(err, exec.ErrNotFound) {
		return NewConfigurationError("backup executor not found in PATH", err)
	}
	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRecoverableError(ErrorTypeExecutor, "Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}
	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch {
		case errors.Is(pathErr.Err, syscall.ENOENT):
			return NewFilesystemError(
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.EACCES), errors.Is(pathErr.Err, syscall.EPERM):
			return NewAppError(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case errors.Is(pathErr.Err, syscall.ENOSPC):
			return NewFilesystemError("No space left on device", err)
		default:
			return NewFilesystemError(
				fmt.Sprintf("Filesystem operation %s failed on %s", pathErr.Op, pathErr.Path), err)
		}
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) {
		return NewFilesystemError(
			fmt.Sprintf("Failed to %s %s -> %s", linkErr.Op, linkErr.Old, linkErr.New), err)
	}

	return nil
}

// GracefulShutdownHandler runs registered cleanup functions when the process
// receives SIGINT or SIGTERM.
type GracefulShutdownHandler struct {
	mu            sync.Mutex
	shutdownFuncs []func() error
	signalChan    chan os.Signal
	done          chan struct{}
	stopped       chan struct{}
	once          sync.Once
	cancel        context.CancelFunc
}

// NewGracefulShutdownHandler creates a new graceful shutdown handler. cancel,
// if non-nil, is invoked before the cleanup functions run.
func NewGracefulShutdownHandler(cancel context.CancelFunc) *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		signalChan: make(chan os.Signal, 1),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		cancel:     cancel,
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (gsh *GracefulShutdownHandler) RegisterShutdownFunc(fn func() error) {
	gsh.mu.Lock()
	defer gsh.mu.Unlock()
	gsh.shutdownFuncs = append(gsh.shutdownFuncs, fn)
}

// Start starts listening for shutdown signals
func (gsh *GracefulShutdownHandler) Start() {
	signal.Notify(gsh.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-gsh.signalChan:
			gsh.Shutdown()
		case <-gsh.stopped:
		}
	}()
}

// Stop stops listening for signals. Registered functions are not run.
func (gsh *GracefulShutdownHandler) Stop() {
	signal.Stop(gsh.signalChan)
	select {
	case <-gsh.stopped:
	default:
		close(gsh.stopped)
	}
}

// Done is closed once Shutdown has completed
func (gsh *GracefulShutdownHandler) Done() <-chan struct{} {
	return gsh.done
}

// Shutdown cancels the run and executes all registered functions in reverse
// registration order. Only the first call has an effect.
func (gsh *GracefulShutdownHandler) Shutdown() {
	gsh.once.Do(func() {
		defer close(gsh.done)

		if gsh.cancel != nil {
			gsh.cancel()
		}

		gsh.mu.Lock()
		funcs := append([]func() error(nil), gsh.shutdownFuncs...)
		gsh.mu.Unlock()

		for i := len(funcs) - 1; i >= 0; i-- {
			if err := funcs[i](); err != nil {
				fmt.Fprintf(os.Stderr, "Error during shutdown: %v\n", err)
			}
		}
	})
}

// IsRecoverableError checks if an error is recoverable
func IsRecoverableError(err error) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsRecoverable()
	}
	return false
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// ExitCode maps an error to the process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch GetErrorType(err) {
	case ErrorTypeConfiguration:
		return 2
	case ErrorTypeFilesystem, ErrorTypePermission:
		return 3
	case ErrorTypeRetention:
		return 4
	case ErrorTypeInterruption:
		return 130
	default:
		return 1
	}
}

// FormatUserError formats an error for display to users
func FormatUserError(err error) string {
	if err == nil {
		return ""
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.GetUserMessage()
	}
	return err.Error()
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		wrapped := NewAppError(appErr.Type, message, err)
		wrapped.Recoverable = appErr.Recoverable
		return wrapped
	}

	classified := NewErrorClassifier().ClassifyError(err)
	classified.Message = message
	return classified
}

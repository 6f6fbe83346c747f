package reporter

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"counterparty-reconciliation/pkg/errors"
	"counterparty-reconciliation/pkg/logger"
)

// SafeReportGenerator wraps ReportGenerator with error classification and
// fallbacks for file output
type SafeReportGenerator struct {
	*ReportGenerator
	logger logger.Logger
}

// NewSafeReportGenerator creates a new safe report generator with error handling
func NewSafeReportGenerator(config *ReportConfig, log logger.Logger) (*SafeReportGenerator, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	generator, err := NewReportGenerator(config)
	if err != nil {
		return nil, errors.ConfigurationError(
			errors.CodeInvalidConfig,
			"report_config",
			config,
			err,
		).WithSuggestion("check the output format and CSV delimiter")
	}

	return &SafeReportGenerator{
		ReportGenerator: generator,
		logger:          log.WithComponent("reporter"),
	}, nil
}

// WriteSafely renders the report and classifies any failure. A JSON or CSV
// encoding failure falls back to console output on the same writer.
func (srg *SafeReportGenerator) WriteSafely(report *Report, writer io.Writer) error {
	if report == nil {
		return errors.ValidationError(errors.CodeMissingField, "report", nil, nil)
	}
	if writer == nil {
		return errors.ValidationError(errors.CodeMissingField, "writer", nil, nil).
			WithSuggestion("provide a valid output writer")
	}

	srg.logger.WithFields(logger.Fields{
		"format": srg.config.Format,
		"report": report.Title,
		"rows":   len(report.Rows),
		"output": getWriterDescription(writer),
	}).Debug("Writing report")

	err := srg.Write(report, writer)
	if err == nil {
		return nil
	}

	if srg.config.Format == FormatConsole || isSpaceError(err) || os.IsPermission(err) {
		return srg.wrapGenerationError(err)
	}

	srg.logger.WithError(err).Warn("Report generation failed, falling back to console format")
	fallback := *srg.config
	fallback.Format = FormatConsole
	fallbackGenerator, ferr := NewReportGenerator(&fallback)
	if ferr != nil {
		return srg.wrapGenerationError(err)
	}

	fmt.Fprintf(writer, "NOTE: report written in console format because %s output failed: %v\n\n", srg.config.Format, err)
	if ferr := fallbackGenerator.Write(report, writer); ferr != nil {
		return errors.InternalError("report_fallback",
			fmt.Errorf("both primary and fallback generation failed: primary=%v, fallback=%v", err, ferr))
	}
	return nil
}

// WriteFile renders the report into path. When path cannot be created the
// report goes to a "_backup" sibling in the system temp directory and the
// returned path says where it landed.
func (srg *SafeReportGenerator) WriteFile(report *Report, path string) (string, error) {
	file, err := os.Create(path)
	if err != nil {
		if !isFileError(err) {
			return "", errors.FileError(errors.CodeFilePermission, path, err)
		}

		backupPath := generateBackupPath(path)
		srg.logger.WithFields(logger.Fields{
			"original_file": path,
			"backup_file":   backupPath,
		}).WithError(err).Warn("Cannot create report file, using backup location")

		file, err = os.Create(backupPath)
		if err != nil {
			return "", errors.FileError(errors.CodeFilePermission, path, err).
				WithSuggestion("check that the output directory exists and is writable")
		}
		path = backupPath
	}

	if err := srg.WriteSafely(report, file); err != nil {
		file.Close()
		return path, err
	}
	if err := file.Close(); err != nil {
		return path, errors.FileError(errors.CodeFilePermission, path, err)
	}
	return path, nil
}

// isFileError checks if the error is file-related
func isFileError(err error) bool {
	return os.IsPermission(err) ||
		os.IsNotExist(err) ||
		isSpaceError(err)
}

// generateBackupPath creates a backup file path
func generateBackupPath(originalPath string) string {
	base := filepath.Base(originalPath)
	ext := filepath.Ext(base)
	name := strings.TrimSuffix(base, ext)

	return filepath.Join(os.TempDir(), fmt.Sprintf("%s_backup%s", name, ext))
}

// wrapGenerationError wraps generation errors with context
func (srg *SafeReportGenerator) wrapGenerationError(err error) error {
	if reconcilerErr, ok := errors.AsReconcilerError(err); ok {
		return reconcilerErr
	}

	return errors.InternalError("report_generation", err).
		WithSuggestion("check the output destination and report format settings")
}

func getWriterDescription(writer io.Writer) string {
	switch w := writer.(type) {
	case *os.File:
		if w.Name() != "" {
			return fmt.Sprintf("file:%s", w.Name())
		}
		return "file:unnamed"
	default:
		return fmt.Sprintf("writer:%T", writer)
	}
}

func isSpaceError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "no space left") ||
		strings.Contains(errStr, "disk full") ||
		strings.Contains(errStr, "device full")
}
